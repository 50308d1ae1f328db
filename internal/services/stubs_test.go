package services

import (
	"context"
	"sync"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/styles"
)

type stubGateway struct {
	analyzeFunc  func(ctx context.Context, prompt string) (string, error)
	generateFunc func(ctx context.Context, prompt string) ([]byte, error)

	mu             sync.Mutex
	analyzePrompts []string
	imagePrompts   []string
}

func (g *stubGateway) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.analyzePrompts = append(g.analyzePrompts, prompt)
	g.mu.Unlock()
	return g.analyzeFunc(ctx, prompt)
}

func (g *stubGateway) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	g.mu.Lock()
	g.imagePrompts = append(g.imagePrompts, prompt)
	g.mu.Unlock()
	return g.generateFunc(ctx, prompt)
}

func (g *stubGateway) lastImagePrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.imagePrompts) == 0 {
		return ""
	}
	return g.imagePrompts[len(g.imagePrompts)-1]
}

type stubTransfer struct {
	downloadFunc  func(ctx context.Context, src blob.Source) (string, error)
	uploadFunc    func(ctx context.Context, dest blob.Destination, data []byte, contentType string) (string, error)
	defaultBucket bool

	mu      sync.Mutex
	uploads []blob.Destination
}

func (t *stubTransfer) DownloadText(ctx context.Context, src blob.Source) (string, error) {
	if t.downloadFunc == nil {
		return "", nil
	}
	return t.downloadFunc(ctx, src)
}

func (t *stubTransfer) Upload(ctx context.Context, dest blob.Destination, data []byte, contentType string) (string, error) {
	t.mu.Lock()
	t.uploads = append(t.uploads, dest)
	t.mu.Unlock()
	if t.uploadFunc == nil {
		return "https://storage.googleapis.com/test-bucket/" + dest.Key, nil
	}
	return t.uploadFunc(ctx, dest, data, contentType)
}

func (t *stubTransfer) HasDefaultBucket() bool {
	return t.defaultBucket
}

func (t *stubTransfer) lastUpload() (blob.Destination, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.uploads) == 0 {
		return blob.Destination{}, false
	}
	return t.uploads[len(t.uploads)-1], true
}

type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]styles.Profile
	saveErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: make(map[string]styles.Profile)}
}

func (m *memoryStore) Save(profile styles.Profile) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.StoryID] = profile
	return nil
}

func (m *memoryStore) Load(storyID string) (styles.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[storyID]
	if !ok {
		return styles.Profile{}, styles.ErrNotFound
	}
	return profile, nil
}

func (m *memoryStore) Delete(storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[storyID]; !ok {
		return styles.ErrNotFound
	}
	delete(m.profiles, storyID)
	return nil
}
