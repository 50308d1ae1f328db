package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/gemini"
	"github.com/storyforge/image-api/internal/platform/httpx"
	"github.com/storyforge/image-api/internal/services"
	"github.com/storyforge/image-api/internal/styles"
)

// writeServiceError maps service layer failures onto the API error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if dup, ok := services.AsDuplicateError(err); ok {
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_request", "an identical request is already being processed", http.StatusConflict).
			WithDetails(map[string]any{"fingerprint": dup.Fingerprint}))
		return
	}

	if errors.Is(err, services.ErrInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if errors.Is(err, blob.ErrNoDestination) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "an upload destination or a configured default bucket is required", http.StatusBadRequest))
		return
	}

	if errors.Is(err, styles.ErrNotFound) {
		httpx.WriteError(ctx, w, httpx.NewError("style_not_found", "no style profile for this story; call learn-style first", http.StatusNotFound))
		return
	}

	if pe, ok := gemini.AsProviderError(err); ok {
		switch pe.Kind {
		case gemini.KindBlocked:
			httpx.WriteError(ctx, w, httpx.NewError(pe.Code, "the prompt was rejected by the provider's content policy", http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"action": pe.Action}))
		case gemini.KindUnavailable:
			httpx.WriteError(ctx, w, httpx.NewError(pe.Code, "the image provider is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError(pe.Code, "the image provider returned an unusable response", http.StatusBadGateway))
		}
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "request failed", http.StatusInternalServerError))
}
