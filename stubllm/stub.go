package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"

	"sahayak/models"
)

// Client is a deterministic, no-network LLM stub for local end-to-end runs and tests.
// By default it returns schema-valid JSON; tests can force a reply or an error.
type Client struct {
	mu         sync.Mutex
	reply      string
	err        error
	calls      int
	lastPrompt string
	mimeType   string
}

func NewClient() *Client { return &Client{} }

// WithReply makes every call return text verbatim.
func (c *Client) WithReply(text string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = text
	return c
}

// WithError makes every call fail with err.
func (c *Client) WithError(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(prompt)
	c.mimeType = mimeType
	if c.err != nil {
		return "", c.err
	}
	if c.reply != "" {
		return c.reply, nil
	}

	// Make output deterministic per image so local runs are stable.
	sum := sha256.Sum256(image)
	category := models.Categories[int(sum[0])%len(models.Categories)]
	severity := int(sum[1])%models.MaxSeverity + 1

	b, err := json.Marshal(map[string]any{"category": category, "severity": severity})
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(prompt)
	if c.err != nil {
		return "", c.err
	}
	if c.reply != "" {
		return c.reply, nil
	}

	b, err := json.Marshal(models.Drafts{
		DraftEN: "Respected Sir/Madam,\n\nThis is a stub complaint draft.",
		DraftBN: "মাননীয় মহাশয়/মহাশয়া,\n\nএটি একটি পরীক্ষামূলক অভিযোগ খসড়া।",
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) record(prompt string) {
	c.calls++
	c.lastPrompt = prompt
}

// Calls returns how many requests the stub has served.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastPrompt returns the most recent prompt, or "".
func (c *Client) LastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPrompt
}

// LastMIMEType returns the MIME type of the most recent image.
func (c *Client) LastMIMEType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mimeType
}
