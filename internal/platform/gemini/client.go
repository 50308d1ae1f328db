// Package gemini wraps the Google GenAI SDK for the two model calls the
// service makes: text analysis through Gemini and image generation through
// Imagen on Vertex AI.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/storyforge/image-api/internal/platform/imaging"
	"github.com/storyforge/image-api/internal/platform/textutil"
)

var (
	errNoModels      = errors.New("gemini: models backend is required")
	errNoGeminiModel = errors.New("gemini: analysis model name is required")
	errNoImagenModel = errors.New("gemini: image model name is required")
)

// Models is the slice of the GenAI SDK the client depends on. *genai.Models
// satisfies it directly; tests substitute a stub.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Deps carries the collaborators a Client needs.
type Deps struct {
	Models      Models
	GeminiModel string
	ImagenModel string
	ImageWidth  int
	ImageHeight int
	Logger      *zap.Logger
}

// Client issues analysis and image-generation calls with the service's fixed
// generation settings.
type Client struct {
	models      Models
	geminiModel string
	imagenModel string
	imageWidth  int
	imageHeight int
	logger      *zap.Logger
}

// NewClient constructs a Client from its dependencies.
func NewClient(deps Deps) (*Client, error) {
	if deps.Models == nil {
		return nil, errNoModels
	}
	if strings.TrimSpace(deps.GeminiModel) == "" {
		return nil, errNoGeminiModel
	}
	if strings.TrimSpace(deps.ImagenModel) == "" {
		return nil, errNoImagenModel
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		models:      deps.Models,
		geminiModel: deps.GeminiModel,
		imagenModel: deps.ImagenModel,
		imageWidth:  deps.ImageWidth,
		imageHeight: deps.ImageHeight,
		logger:      logger,
	}, nil
}

// NewVertexClient dials Vertex AI and returns the Models backend for the
// given project and location. When apiKey is set the client authenticates
// with it instead of application default credentials.
func NewVertexClient(ctx context.Context, project, location, apiKey string) (Models, error) {
	cfg := &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: dial vertex: %w", err)
	}
	return client.Models, nil
}

// AnalyzeText sends the prompt to the analysis model and returns the raw
// reply text. Callers run ExtractJSON over the result before parsing.
func (c *Client) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, c.geminiModel, contents, nil)
	if err != nil {
		return "", classifyError("analysis call failed", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", badResponseError("analysis reply contained no text")
	}
	return text, nil
}

// GenerateImage renders the prompt through Imagen and returns PNG bytes. The
// aspect ratio is fixed at 16:9 and the result is resized to the configured
// dimensions; a resize failure is logged and the original bytes returned.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	config := &genai.GenerateImagesConfig{
		NumberOfImages:    1,
		AspectRatio:       "16:9",
		SafetyFilterLevel: genai.SafetyFilterLevelBlockMediumAndAbove,
		PersonGeneration:  genai.PersonGenerationAllowAdult,
	}

	resp, err := c.models.GenerateImages(ctx, c.imagenModel, prompt, config)
	if err != nil {
		return nil, classifyError("image call failed", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, badResponseError("image reply contained no image data")
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	if c.imageWidth > 0 && c.imageHeight > 0 {
		resized, err := imaging.Resize(data, c.imageWidth, c.imageHeight)
		if err != nil {
			c.logger.Warn("image resize failed, returning original", zap.Error(err))
			return data, nil
		}
		data = resized
	}
	return data, nil
}

// classifyError sorts SDK errors into the service's provider taxonomy. The
// SDK reports safety rejections as plain errors, so blocked requests are
// recognised by the wording of the message.
func classifyError(message string, err error) *ProviderError {
	if textutil.IsSafetyBlockMessage(err.Error()) {
		return blockedError(message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailableError(message, err)
	}
	return failedError(message, err)
}
