package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/httpx"
	"github.com/storyforge/image-api/internal/services"
)

const maxGenerateBodySize = 1 << 20

// ImageService is the slice of the image service the handlers depend on.
type ImageService interface {
	Generate(ctx context.Context, input services.GenerateInput) (services.GenerateOutput, error)
}

// ImageHandlers exposes the image generation endpoint.
type ImageHandlers struct {
	service ImageService
}

// NewImageHandlers constructs handlers backed by the image service.
func NewImageHandlers(service ImageService) *ImageHandlers {
	return &ImageHandlers{service: service}
}

// Routes wires the image endpoints onto the provided router.
func (h *ImageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/generate-image", h.generateImage)
}

type generateImageRequest struct {
	StoryID     string `json:"story_id"`
	UserPrompt  string `json:"user_prompt"`
	ContextText string `json:"context_text"`

	UploadURL string `json:"upload_url"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
}

type generateImageResponse struct {
	StoryID        string `json:"story_id"`
	ImageURL       string `json:"image_url"`
	EnhancedPrompt string `json:"enhanced_prompt"`
	Key            string `json:"key,omitempty"`
}

func (h *ImageHandlers) generateImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateImageRequest
	body := http.MaxBytesReader(w, r.Body, maxGenerateBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	out, err := h.service.Generate(ctx, services.GenerateInput{
		StoryID:     strings.TrimSpace(req.StoryID),
		UserPrompt:  strings.TrimSpace(req.UserPrompt),
		ContextText: req.ContextText,
		Destination: blob.Destination{
			URL:    req.UploadURL,
			Bucket: req.Bucket,
			Key:    req.Key,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, generateImageResponse{
		StoryID:        out.StoryID,
		ImageURL:       out.ImageURL,
		EnhancedPrompt: out.EnhancedPrompt,
		Key:            out.DestinationKey,
	})
}
