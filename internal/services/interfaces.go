package services

import (
	"context"

	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/styles"
)

// ModelGateway covers the two generative calls the services make.
// *gemini.Client satisfies it; tests substitute stubs.
type ModelGateway interface {
	AnalyzeText(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// BlobTransfer moves text and images between the service and object storage.
// *blob.Transfer satisfies it.
type BlobTransfer interface {
	DownloadText(ctx context.Context, src blob.Source) (string, error)
	Upload(ctx context.Context, dest blob.Destination, data []byte, contentType string) (string, error)
	HasDefaultBucket() bool
}

// ProfileStore persists style profiles. *styles.Store satisfies it.
type ProfileStore interface {
	Save(profile styles.Profile) error
	Load(storyID string) (styles.Profile, error)
	Delete(storyID string) error
}
