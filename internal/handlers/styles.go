package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/httpx"
	"github.com/storyforge/image-api/internal/services"
	"github.com/storyforge/image-api/internal/styles"
)

// Novel texts arrive inline, so the body limit is generous.
const maxLearnBodySize = 10 << 20

// StyleService is the slice of the style service the handlers depend on.
type StyleService interface {
	LearnStyle(ctx context.Context, input services.LearnStyleInput) (services.LearnStyleOutput, error)
	GetStyle(ctx context.Context, storyID string) (styles.Profile, error)
	DeleteStyle(ctx context.Context, storyID string) error
}

// StyleHandlers exposes style learning, lookup, and deletion endpoints.
type StyleHandlers struct {
	service StyleService
}

// NewStyleHandlers constructs handlers backed by the style service.
func NewStyleHandlers(service StyleService) *StyleHandlers {
	return &StyleHandlers{service: service}
}

// Routes wires the style endpoints onto the provided router.
func (h *StyleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/learn-style", h.learnStyle)
	r.Get("/style/{storyID}", h.getStyle)
	r.Delete("/style/{storyID}", h.deleteStyle)
}

type learnStyleRequest struct {
	StoryID   string `json:"story_id"`
	Title     string `json:"title"`
	NovelText string `json:"novel_text"`

	NovelURL    string `json:"novel_url"`
	NovelBucket string `json:"novel_bucket"`
	NovelKey    string `json:"novel_key"`

	ThumbnailURL    string `json:"thumbnail_url"`
	ThumbnailBucket string `json:"thumbnail_bucket"`
	ThumbnailKey    string `json:"thumbnail_key"`
}

type styleResponse struct {
	StoryID           string   `json:"story_id"`
	StyleSummary      string   `json:"style_summary"`
	Atmosphere        string   `json:"atmosphere"`
	VisualStyle       string   `json:"visual_style"`
	KeyThemes         []string `json:"key_themes"`
	ColorPalette      string   `json:"color_palette"`
	LightingStyle     string   `json:"lighting_style"`
	VisualKeywords    []string `json:"visual_keywords"`
	CreatedAt         string   `json:"created_at"`
	ThumbnailImageURL string   `json:"thumbnail_image_url,omitempty"`
}

func buildStyleResponse(profile styles.Profile, thumbnailURL string) styleResponse {
	return styleResponse{
		StoryID:           profile.StoryID,
		StyleSummary:      profile.StyleSummary,
		Atmosphere:        profile.Atmosphere,
		VisualStyle:       profile.VisualStyle,
		KeyThemes:         profile.KeyThemes,
		ColorPalette:      profile.ColorPalette,
		LightingStyle:     profile.LightingStyle,
		VisualKeywords:    profile.VisualKeywords,
		CreatedAt:         profile.UpdatedAt.UTC().Format(time.RFC3339),
		ThumbnailImageURL: thumbnailURL,
	}
}

func (h *StyleHandlers) learnStyle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req learnStyleRequest
	body := http.MaxBytesReader(w, r.Body, maxLearnBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	out, err := h.service.LearnStyle(ctx, services.LearnStyleInput{
		StoryID:   strings.TrimSpace(req.StoryID),
		Title:     req.Title,
		NovelText: req.NovelText,
		NovelSource: blob.Source{
			URL:    req.NovelURL,
			Bucket: req.NovelBucket,
			Key:    req.NovelKey,
		},
		ThumbnailDest: blob.Destination{
			URL:    req.ThumbnailURL,
			Bucket: req.ThumbnailBucket,
			Key:    req.ThumbnailKey,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildStyleResponse(out.Profile, out.ThumbnailURL))
}

func (h *StyleHandlers) getStyle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := chi.URLParam(r, "storyID")

	profile, err := h.service.GetStyle(ctx, storyID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildStyleResponse(profile, ""))
}

func (h *StyleHandlers) deleteStyle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := chi.URLParam(r, "storyID")

	if err := h.service.DeleteStyle(ctx, storyID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "style profile deleted for story " + storyID,
	})
}
