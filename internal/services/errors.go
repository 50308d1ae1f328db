package services

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks requests the service rejects before doing any work.
var ErrInvalidInput = errors.New("services: invalid input")

// DuplicateError reports that an identical request is already being processed.
type DuplicateError struct {
	Fingerprint string
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("services: duplicate request already in flight (fingerprint %s)", e.Fingerprint)
}

// AsDuplicateError extracts a DuplicateError from an error chain.
func AsDuplicateError(err error) (*DuplicateError, bool) {
	var de *DuplicateError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
