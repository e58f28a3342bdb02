package llm

import "context"

// Client abstracts the generative-AI provider used by the wizard.
// Implementations must be safe for concurrent use; one instance serves every request.
type Client interface {
	// AnalyzeImage sends an instruction plus one image and returns the raw reply text.
	AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	// GenerateText sends a text-only prompt and returns the raw reply text.
	GenerateText(ctx context.Context, prompt string) (string, error)
	// SourceName returns a short provider label for logs and metrics (e.g. "Gemini").
	SourceName() string
}
