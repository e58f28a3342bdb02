package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

var (
	ErrMissingAPIKey = errors.New("gemini api key not configured")
	ErrEmptyResponse = errors.New("gemini returned no text")
)

// Client talks to the Gemini API through the genai SDK.
type Client struct {
	client *genai.Client
	model  string
}

// Option customizes the SDK configuration.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint, such as a proxy or a test server.
func WithBaseURL(baseURL string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = baseURL
	}
}

// NewClient creates a Gemini client. It is built once at startup and shared.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !strings.HasPrefix(apiKey, "AIza") {
		log.Warn("Gemini API key does not start with 'AIza', it might be invalid")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Infof("Gemini client initialized (model %s, key length %d)", model, len(apiKey))
	return &Client{client: client, model: model}, nil
}

func (c *Client) SourceName() string {
	return "Gemini"
}

// AnalyzeImage sends the instruction text followed by the inline image.
func (c *Client) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	return c.generateContent(ctx, contents)
}

// GenerateText sends a text-only prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generateContent(ctx, genai.Text(prompt))
}

func (c *Client) generateContent(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
