// Package styles persists learned style profiles as flat JSON files, one per
// story.
package styles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when no profile exists for the requested story.
var ErrNotFound = errors.New("styles: profile not found")

var (
	errNoDir     = errors.New("styles: directory is required")
	errNoStoryID = errors.New("styles: story id is required")
)

// Profile captures the visual identity distilled from a novel's text.
type Profile struct {
	StoryID        string    `json:"story_id"`
	StyleSummary   string    `json:"style_summary"`
	Atmosphere     string    `json:"atmosphere"`
	VisualStyle    string    `json:"visual_style"`
	KeyThemes      []string  `json:"key_themes"`
	ColorPalette   string    `json:"color_palette"`
	LightingStyle  string    `json:"lighting_style"`
	VisualKeywords []string  `json:"visual_keywords"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store reads and writes profiles under a single directory.
type Store struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// StoreOption customises Store construction.
type StoreOption func(*Store)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore creates the profile directory if needed and returns a Store.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errNoDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("styles: create directory %s: %w", dir, err)
	}

	store := &Store{
		dir:    dir,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// PathFor returns the file path a story's profile is stored at.
func (s *Store) PathFor(storyID string) string {
	return filepath.Join(s.dir, storyID+".json")
}

// Save stamps the profile with the current time and writes it to disk. The
// write goes through a temp file and rename so a crash mid-write never leaves
// a truncated profile behind.
func (s *Store) Save(profile Profile) error {
	if strings.TrimSpace(profile.StoryID) == "" {
		return errNoStoryID
	}
	profile.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("styles: encode profile for %s: %w", profile.StoryID, err)
	}

	path := s.PathFor(profile.StoryID)
	tmp, err := os.CreateTemp(s.dir, "profile-*.tmp")
	if err != nil {
		return fmt.Errorf("styles: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("styles: write profile for %s: %w", profile.StoryID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("styles: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("styles: store profile for %s: %w", profile.StoryID, err)
	}

	s.logger.Debug("style profile saved", zap.String("story_id", profile.StoryID), zap.String("path", path))
	return nil
}

// Load reads the profile for a story. Returns ErrNotFound when none exists.
func (s *Store) Load(storyID string) (Profile, error) {
	if strings.TrimSpace(storyID) == "" {
		return Profile{}, errNoStoryID
	}

	data, err := os.ReadFile(s.PathFor(storyID))
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, fmt.Errorf("%w: story %s", ErrNotFound, storyID)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("styles: read profile for %s: %w", storyID, err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("styles: decode profile for %s: %w", storyID, err)
	}
	return profile, nil
}

// Delete removes the profile for a story. Returns ErrNotFound when none exists.
func (s *Store) Delete(storyID string) error {
	if strings.TrimSpace(storyID) == "" {
		return errNoStoryID
	}

	err := os.Remove(s.PathFor(storyID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: story %s", ErrNotFound, storyID)
	}
	if err != nil {
		return fmt.Errorf("styles: delete profile for %s: %w", storyID, err)
	}

	s.logger.Debug("style profile deleted", zap.String("story_id", storyID))
	return nil
}
