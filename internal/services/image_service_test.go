package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/dedup"
	"github.com/storyforge/image-api/internal/platform/gemini"
	"github.com/storyforge/image-api/internal/styles"
)

func newImageService(t *testing.T, gateway *stubGateway, transfer *stubTransfer, store *memoryStore) *ImageService {
	t.Helper()
	svc, err := NewImageService(ImageServiceDeps{
		Store:   store,
		Gateway: gateway,
		Blob:    transfer,
		Tracker: dedup.NewTracker(),
	})
	if err != nil {
		t.Fatalf("NewImageService returned error: %v", err)
	}
	return svc
}

func storeWithProfile(storyID string) *memoryStore {
	store := newMemoryStore()
	store.profiles[storyID] = styles.Profile{
		StoryID:        storyID,
		Atmosphere:     "foggy and oppressive",
		VisualStyle:    "painterly realism",
		ColorPalette:   "slate blue and rust",
		LightingStyle:  "low-key diffuse light",
		VisualKeywords: []string{"lighthouse", "mist"},
	}
	return store
}

func TestGenerateHappyPath(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `"A keeper walking the breakwater at dusk, digital painting, highly detailed"`, nil
		},
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			return []byte("png-bytes"), nil
		},
	}
	transfer := &stubTransfer{
		uploadFunc: func(ctx context.Context, dest blob.Destination, data []byte, contentType string) (string, error) {
			if contentType != "image/png" {
				t.Errorf("unexpected content type %q", contentType)
			}
			return "https://storage.googleapis.com/imgs/scenes/1.png", nil
		},
	}
	svc := newImageService(t, gateway, transfer, storeWithProfile("story-1"))

	out, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-1",
		UserPrompt:  "the keeper walks into the storm",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/1.png"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if out.ImageURL != "https://storage.googleapis.com/imgs/scenes/1.png" {
		t.Errorf("unexpected URL %q", out.ImageURL)
	}
	if out.DestinationKey != "scenes/1.png" {
		t.Errorf("unexpected destination key %q", out.DestinationKey)
	}
	// StripQuotes removes the model's wrapping quotes before generation.
	if strings.HasPrefix(out.EnhancedPrompt, `"`) {
		t.Errorf("enhanced prompt still quoted: %q", out.EnhancedPrompt)
	}
	if !strings.Contains(out.EnhancedPrompt, "breakwater at dusk") {
		t.Errorf("unexpected enhanced prompt %q", out.EnhancedPrompt)
	}
}

func TestGenerateValidation(t *testing.T) {
	svc := newImageService(t, &stubGateway{}, &stubTransfer{}, newMemoryStore())

	_, err := svc.Generate(context.Background(), GenerateInput{UserPrompt: "p"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing story id, got %v", err)
	}
	_, err = svc.Generate(context.Background(), GenerateInput{StoryID: "s"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing prompt, got %v", err)
	}
}

func TestGenerateMissingProfile(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc:  func(ctx context.Context, prompt string) (string, error) { return "p", nil },
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) { return []byte("x"), nil },
	}
	svc := newImageService(t, gateway, &stubTransfer{}, newMemoryStore())

	_, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:    "unknown",
		UserPrompt: "a scene",
	})
	if !errors.Is(err, styles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateRejectsDuplicate(t *testing.T) {
	tracker := dedup.NewTracker()
	svc, err := NewImageService(ImageServiceDeps{
		Store:   storeWithProfile("story-2"),
		Gateway: &stubGateway{},
		Blob:    &stubTransfer{},
		Tracker: tracker,
	})
	if err != nil {
		t.Fatalf("NewImageService returned error: %v", err)
	}

	fingerprint := dedup.Fingerprint("story-2", "scenes/2.png", "a scene")
	if _, err := tracker.Acquire(fingerprint, "scenes/2.png", "story-2"); err != nil {
		t.Fatalf("priming Acquire failed: %v", err)
	}

	_, err = svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-2",
		UserPrompt:  "a scene",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/2.png"},
	})
	dup, ok := AsDuplicateError(err)
	if !ok {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Fingerprint != fingerprint {
		t.Errorf("fingerprint mismatch: %q vs %q", dup.Fingerprint, fingerprint)
	}
}

func TestGenerateEnhancementFailureUsesRawPrompt(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("model unavailable")
		},
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			return []byte("png"), nil
		},
	}
	svc := newImageService(t, gateway, &stubTransfer{}, storeWithProfile("story-3"))

	out, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-3",
		UserPrompt:  "a duel with a sword on the cliffs",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/3.png"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	// The caller sees the prompt as written; only the provider copy is
	// rewritten.
	if out.EnhancedPrompt != "a duel with a sword on the cliffs" {
		t.Errorf("expected raw user prompt, got %q", out.EnhancedPrompt)
	}
	sent := gateway.lastImagePrompt()
	if strings.Contains(sent, "sword") {
		t.Errorf("sensitive term survived rewrite: %q", sent)
	}
	if !strings.Contains(sent, "ancient blade") {
		t.Errorf("expected rewritten term in %q", sent)
	}
}

func TestGenerateReportsPreRewritePrompt(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "a bloody duel beneath the lighthouse", nil
		},
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			return []byte("png"), nil
		},
	}
	svc := newImageService(t, gateway, &stubTransfer{}, storeWithProfile("story-7"))

	out, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-7",
		UserPrompt:  "a duel",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/7.png"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out.EnhancedPrompt != "a bloody duel beneath the lighthouse" {
		t.Errorf("reported prompt should be pre-rewrite, got %q", out.EnhancedPrompt)
	}
	if sent := gateway.lastImagePrompt(); strings.Contains(sent, "bloody") {
		t.Errorf("provider prompt not rewritten: %q", sent)
	}
}

func TestGeneratePropagatesProviderBlock(t *testing.T) {
	blocked := &gemini.ProviderError{
		Kind:   gemini.KindBlocked,
		Code:   gemini.CodeContentPolicyBlocked,
		Action: gemini.ActionUploadImage,
	}
	gateway := &stubGateway{
		analyzeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "an enhanced prompt", nil
		},
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			return nil, blocked
		},
	}
	svc := newImageService(t, gateway, &stubTransfer{}, storeWithProfile("story-4"))

	_, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-4",
		UserPrompt:  "a scene",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/4.png"},
	})
	pe, ok := gemini.AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Kind != gemini.KindBlocked {
		t.Fatalf("expected KindBlocked, got %v", pe.Kind)
	}
}

func TestGenerateUploadFailure(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc:  func(ctx context.Context, prompt string) (string, error) { return "p", nil },
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) { return []byte("png"), nil },
	}
	transfer := &stubTransfer{
		uploadFunc: func(ctx context.Context, dest blob.Destination, data []byte, contentType string) (string, error) {
			return "", errors.New("bucket gone")
		},
	}
	svc := newImageService(t, gateway, transfer, storeWithProfile("story-5"))

	_, err := svc.Generate(context.Background(), GenerateInput{
		StoryID:     "story-5",
		UserPrompt:  "a scene",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/5.png"},
	})
	if err == nil || !strings.Contains(err.Error(), "upload generated image") {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestGenerateAllowsRetryAfterCompletion(t *testing.T) {
	gateway := &stubGateway{
		analyzeFunc:  func(ctx context.Context, prompt string) (string, error) { return "p", nil },
		generateFunc: func(ctx context.Context, prompt string) ([]byte, error) { return []byte("png"), nil },
	}
	svc := newImageService(t, gateway, &stubTransfer{}, storeWithProfile("story-6"))

	input := GenerateInput{
		StoryID:     "story-6",
		UserPrompt:  "a scene",
		Destination: blob.Destination{Bucket: "imgs", Key: "scenes/6.png"},
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), input); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
}
