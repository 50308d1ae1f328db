package gemini

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures so handlers can pick a response status
// without string-matching error text themselves.
type Kind int

const (
	// KindFailed covers generic provider errors.
	KindFailed Kind = iota
	// KindBlocked marks requests rejected by the provider's content policy.
	KindBlocked
	// KindUnavailable marks transport-level failures reaching the provider.
	KindUnavailable
	// KindBadResponse marks responses the provider returned but the service
	// could not use (no candidates, no image bytes).
	KindBadResponse
)

// Codes reported to API clients for each failure kind.
const (
	CodeContentPolicyBlocked = "CONTENT_POLICY_BLOCKED"
	CodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	CodeProviderBadResponse  = "PROVIDER_BAD_RESPONSE"
	CodeProviderFailed       = "PROVIDER_FAILED"
)

// ActionUploadImage is the remedial action suggested when generation is
// blocked: the caller can upload an image of their own instead.
const ActionUploadImage = "UPLOAD_IMAGE"

// ProviderError describes a failed call against a generative model.
type ProviderError struct {
	Kind    Kind
	Code    string
	Message string
	Action  string
	Err     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gemini: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("gemini: %s", e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func blockedError(message string, cause error) *ProviderError {
	return &ProviderError{
		Kind:    KindBlocked,
		Code:    CodeContentPolicyBlocked,
		Message: message,
		Action:  ActionUploadImage,
		Err:     cause,
	}
}

func unavailableError(message string, cause error) *ProviderError {
	return &ProviderError{Kind: KindUnavailable, Code: CodeProviderUnavailable, Message: message, Err: cause}
}

func badResponseError(message string) *ProviderError {
	return &ProviderError{Kind: KindBadResponse, Code: CodeProviderBadResponse, Message: message}
}

func failedError(message string, cause error) *ProviderError {
	return &ProviderError{Kind: KindFailed, Code: CodeProviderFailed, Message: message, Err: cause}
}
