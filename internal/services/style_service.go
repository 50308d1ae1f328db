package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/dedup"
	"github.com/storyforge/image-api/internal/platform/gemini"
	"github.com/storyforge/image-api/internal/platform/textutil"
	"github.com/storyforge/image-api/internal/styles"
)

var (
	errNoStore   = errors.New("services: profile store is required")
	errNoGateway = errors.New("services: model gateway is required")
	errNoBlob    = errors.New("services: blob transfer is required")
	errNoTracker = errors.New("services: request tracker is required")
)

// StyleServiceDeps carries the collaborators a StyleService needs.
type StyleServiceDeps struct {
	Store   ProfileStore
	Gateway ModelGateway
	Blob    BlobTransfer
	Tracker *dedup.Tracker
	Logger  *zap.Logger
}

// StyleService learns, serves, and deletes novel style profiles.
type StyleService struct {
	store   ProfileStore
	gateway ModelGateway
	blob    BlobTransfer
	tracker *dedup.Tracker
	logger  *zap.Logger
}

// NewStyleService constructs a StyleService from its dependencies.
func NewStyleService(deps StyleServiceDeps) (*StyleService, error) {
	if deps.Store == nil {
		return nil, errNoStore
	}
	if deps.Gateway == nil {
		return nil, errNoGateway
	}
	if deps.Blob == nil {
		return nil, errNoBlob
	}
	if deps.Tracker == nil {
		return nil, errNoTracker
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StyleService{
		store:   deps.Store,
		gateway: deps.Gateway,
		blob:    deps.Blob,
		tracker: deps.Tracker,
		logger:  logger,
	}, nil
}

// LearnStyleInput describes a style learning request. NovelText takes
// precedence; otherwise the text is downloaded from NovelSource.
type LearnStyleInput struct {
	StoryID       string
	Title         string
	NovelText     string
	NovelSource   blob.Source
	ThumbnailDest blob.Destination
}

// LearnStyleOutput reports the learned profile and, when thumbnail
// generation succeeded, the uploaded cover's URL.
type LearnStyleOutput struct {
	Profile      styles.Profile
	ThumbnailURL string
}

// LearnStyle analyzes the novel's text, persists the resulting profile, and
// generates a cover thumbnail as a best-effort extra. A thumbnail failure
// never fails the request; the profile is already saved by then.
func (s *StyleService) LearnStyle(ctx context.Context, input LearnStyleInput) (LearnStyleOutput, error) {
	if strings.TrimSpace(input.StoryID) == "" {
		return LearnStyleOutput{}, fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}

	fingerprint := dedup.Fingerprint(input.StoryID, input.ThumbnailDest.Key, "")
	job, err := s.tracker.Acquire(fingerprint, input.ThumbnailDest.Key, input.StoryID)
	if err != nil {
		if errors.Is(err, dedup.ErrInFlight) {
			return LearnStyleOutput{}, &DuplicateError{Fingerprint: fingerprint}
		}
		return LearnStyleOutput{}, err
	}
	defer s.tracker.Unregister(fingerprint)
	defer func() { job.Finish(err) }()

	text, err := s.novelText(ctx, input)
	if err != nil {
		return LearnStyleOutput{}, err
	}

	profile := s.analyze(ctx, input.StoryID, input.Title, text)
	if err = s.store.Save(profile); err != nil {
		return LearnStyleOutput{}, fmt.Errorf("save style profile: %w", err)
	}
	s.logger.Info("style profile learned",
		zap.String("story_id", input.StoryID),
		zap.Int("novel_chars", len([]rune(text))))

	out := LearnStyleOutput{Profile: profile}
	out.ThumbnailURL = s.generateThumbnail(ctx, input, profile, text)
	return out, nil
}

func (s *StyleService) novelText(ctx context.Context, input LearnStyleInput) (string, error) {
	if strings.TrimSpace(input.NovelText) != "" {
		return input.NovelText, nil
	}

	src := input.NovelSource
	hasURL := strings.TrimSpace(src.URL) != ""
	hasBucketKey := strings.TrimSpace(src.Bucket) != "" && strings.TrimSpace(src.Key) != ""
	if !hasURL && !hasBucketKey {
		return "", fmt.Errorf("%w: novel text or a novel source is required", ErrInvalidInput)
	}

	text, err := s.blob.DownloadText(ctx, src)
	if err != nil {
		return "", fmt.Errorf("%w: novel download failed: %v", ErrInvalidInput, err)
	}
	return text, nil
}

// analyze never fails: when the model call or the JSON parse goes wrong the
// story still gets a neutral profile so image generation stays usable.
func (s *StyleService) analyze(ctx context.Context, storyID, title, text string) styles.Profile {
	reply, err := s.gateway.AnalyzeText(ctx, AnalysisPrompt(title, text))
	if err != nil {
		s.logger.Warn("style analysis call failed, using fallback profile",
			zap.String("story_id", storyID), zap.Error(err))
		return FallbackProfile(storyID)
	}

	profile, err := parseProfile(storyID, reply)
	if err != nil {
		s.logger.Warn("style analysis reply unparseable, using fallback profile",
			zap.String("story_id", storyID), zap.Error(err))
		return FallbackProfile(storyID)
	}
	return profile
}

func (s *StyleService) generateThumbnail(ctx context.Context, input LearnStyleInput, profile styles.Profile, text string) string {
	dest := input.ThumbnailDest
	hasDest := strings.TrimSpace(dest.URL) != "" ||
		(strings.TrimSpace(dest.Bucket) != "" && strings.TrimSpace(dest.Key) != "")
	if !hasDest && !s.blob.HasDefaultBucket() {
		s.logger.Warn("no thumbnail destination and no default bucket, skipping thumbnail",
			zap.String("story_id", input.StoryID))
		return ""
	}

	prompt := s.thumbnailPrompt(ctx, input.Title, profile, text)
	prompt = textutil.Rewrite(prompt)

	image, err := s.gateway.GenerateImage(ctx, prompt)
	if err != nil {
		s.logger.Warn("thumbnail generation failed, style learning still succeeded",
			zap.String("story_id", input.StoryID), zap.Error(err))
		return ""
	}

	if dest.URL == "" && strings.TrimSpace(dest.Key) == "" {
		dest.Key = fmt.Sprintf("thumbnails/%s/thumbnail.png", input.StoryID)
	}
	url, err := s.blob.Upload(ctx, dest, image, "image/png")
	if err != nil {
		s.logger.Warn("thumbnail upload failed, style learning still succeeded",
			zap.String("story_id", input.StoryID), zap.Error(err))
		return ""
	}
	s.logger.Info("thumbnail uploaded", zap.String("story_id", input.StoryID), zap.String("url", url))
	return url
}

func (s *StyleService) thumbnailPrompt(ctx context.Context, title string, profile styles.Profile, text string) string {
	reply, err := s.gateway.AnalyzeText(ctx, ThumbnailPrompt(title, profile, truncateRunes(text, contextExcerptLimit)))
	if err != nil {
		s.logger.Warn("thumbnail prompt generation failed, using fallback prompt", zap.Error(err))
		return FallbackThumbnailPrompt(title, profile)
	}
	return gemini.StripQuotes(reply)
}

// GetStyle returns the stored profile for a story.
func (s *StyleService) GetStyle(_ context.Context, storyID string) (styles.Profile, error) {
	if strings.TrimSpace(storyID) == "" {
		return styles.Profile{}, fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}
	return s.store.Load(storyID)
}

// DeleteStyle removes the stored profile for a story.
func (s *StyleService) DeleteStyle(_ context.Context, storyID string) error {
	if strings.TrimSpace(storyID) == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}
	return s.store.Delete(storyID)
}

// parseProfile decodes the model's JSON reply, tolerating code fences and
// missing optional fields.
func parseProfile(storyID, reply string) (styles.Profile, error) {
	payload := gemini.ExtractJSON(reply)

	var profile styles.Profile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return styles.Profile{}, fmt.Errorf("decode style profile: %w", err)
	}
	profile.StoryID = storyID
	if strings.TrimSpace(profile.LightingStyle) == "" {
		profile.LightingStyle = "natural lighting"
	}
	if profile.KeyThemes == nil {
		profile.KeyThemes = []string{}
	}
	if profile.VisualKeywords == nil {
		profile.VisualKeywords = []string{}
	}
	return profile, nil
}
