package services

import (
	"context"
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

// ImageServiceDeps carries the collaborators an ImageService needs.
type ImageServiceDeps struct {
	Store   ProfileStore
	Gateway ModelGateway
	Blob    BlobTransfer
	Tracker *dedup.Tracker
	Logger  *zap.Logger
}

// ImageService generates story-styled images and uploads them to object
// storage.
type ImageService struct {
	store   ProfileStore
	gateway ModelGateway
	blob    BlobTransfer
	tracker *dedup.Tracker
	logger  *zap.Logger
}

// NewImageService constructs an ImageService from its dependencies.
func NewImageService(deps ImageServiceDeps) (*ImageService, error) {
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
	return &ImageService{
		store:   deps.Store,
		gateway: deps.Gateway,
		blob:    deps.Blob,
		tracker: deps.Tracker,
		logger:  logger,
	}, nil
}

// GenerateInput describes an image generation request.
type GenerateInput struct {
	StoryID     string
	UserPrompt  string
	ContextText string
	Destination blob.Destination
}

// GenerateOutput reports where the generated image landed and the prompt
// that produced it.
type GenerateOutput struct {
	StoryID        string
	ImageURL       string
	EnhancedPrompt string
	DestinationKey string
}

// Generate runs the full pipeline: load the story's profile, enhance the
// user's prompt with it, render through Imagen, and upload the result. The
// work runs on a detached context so a dropped client connection does not
// abandon a generation that storage will still be waiting for.
func (s *ImageService) Generate(ctx context.Context, input GenerateInput) (GenerateOutput, error) {
	if strings.TrimSpace(input.StoryID) == "" {
		return GenerateOutput{}, fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.UserPrompt) == "" {
		return GenerateOutput{}, fmt.Errorf("%w: user prompt is required", ErrInvalidInput)
	}

	fingerprint := dedup.Fingerprint(input.StoryID, input.Destination.Key, input.UserPrompt)
	job, err := s.tracker.Acquire(fingerprint, input.Destination.Key, input.StoryID)
	if err != nil {
		if errors.Is(err, dedup.ErrInFlight) {
			s.logger.Warn("duplicate generation request rejected",
				zap.String("story_id", input.StoryID),
				zap.String("fingerprint", fingerprint))
			return GenerateOutput{}, &DuplicateError{Fingerprint: fingerprint}
		}
		return GenerateOutput{}, err
	}

	var out GenerateOutput
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.tracker.Unregister(fingerprint)
		result, workErr := s.run(detached, input)
		if workErr == nil {
			out = result
		}
		job.Finish(workErr)
	}()

	if err := job.Wait(ctx); err != nil {
		return GenerateOutput{}, err
	}
	return out, nil
}

func (s *ImageService) run(ctx context.Context, input GenerateInput) (GenerateOutput, error) {
	profile, err := s.store.Load(input.StoryID)
	if err != nil {
		if errors.Is(err, styles.ErrNotFound) {
			return GenerateOutput{}, err
		}
		return GenerateOutput{}, fmt.Errorf("load style profile: %w", err)
	}

	// The caller sees the enhanced prompt as written; only the copy sent to
	// the provider gets the sensitive-term rewrite.
	prompt := s.enhancePrompt(ctx, input, profile)

	image, err := s.gateway.GenerateImage(ctx, textutil.Rewrite(prompt))
	if err != nil {
		return GenerateOutput{}, err
	}

	url, err := s.blob.Upload(ctx, input.Destination, image, "image/png")
	if err != nil {
		return GenerateOutput{}, fmt.Errorf("upload generated image: %w", err)
	}

	s.logger.Info("image generated",
		zap.String("story_id", input.StoryID),
		zap.String("url", url))

	return GenerateOutput{
		StoryID:        input.StoryID,
		ImageURL:       url,
		EnhancedPrompt: prompt,
		DestinationKey: input.Destination.Key,
	}, nil
}

// enhancePrompt degrades to the raw user prompt when the model cannot
// improve it; generation proceeds either way.
func (s *ImageService) enhancePrompt(ctx context.Context, input GenerateInput, profile styles.Profile) string {
	reply, err := s.gateway.AnalyzeText(ctx, EnhancedPrompt(input.UserPrompt, profile, input.ContextText))
	if err != nil {
		s.logger.Warn("prompt enhancement failed, using user prompt as-is",
			zap.String("story_id", input.StoryID), zap.Error(err))
		return input.UserPrompt
	}
	return gemini.StripQuotes(reply)
}
