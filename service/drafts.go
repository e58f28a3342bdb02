package service

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"sahayak/llm"
	"sahayak/metrics"
	"sahayak/models"
	"sahayak/parser"
)

const draftPromptTemplate = `You are Sahayak, a helpful AI assistant for reporting civic issues.
Your task is to draft two formal complaint emails, one in English and one in Bengali, addressed to the '%s'.

The user has confirmed the following details for the report:
- Issue Category: "%s"
- Severity (1-10): "%d"
- Precise Location Address: "%s"

Instructions:
1. Write two email drafts (one English, one Bengali).
2. The tone must be formal and clear.
3. The body of each email MUST include the Issue Category, Severity, and the user-provided Location Address.
4. Return ONLY a single, minified JSON object with NO markdown.
5. The JSON object must have exactly two keys: "draft_en" and "draft_bn".
`

// DraftGenerator asks the AI service for the English and Bengali complaint drafts.
type DraftGenerator struct {
	client llm.Client
}

func NewDraftGenerator(client llm.Client) *DraftGenerator {
	return &DraftGenerator{client: client}
}

// DraftPrompt renders the instruction for one report.
func DraftPrompt(req models.DraftRequest) string {
	return fmt.Sprintf(draftPromptTemplate, req.AuthorityName, req.Category, int(req.Severity), req.LocationName)
}

// Generate returns the drafts or an error; failures are not defaulted.
func (g *DraftGenerator) Generate(ctx context.Context, req models.DraftRequest) (*models.Drafts, error) {
	drafts, err := g.generate(ctx, req)
	if err != nil {
		metrics.DraftsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.DraftsTotal.WithLabelValues(metrics.ResultOK).Inc()
	return drafts, nil
}

func (g *DraftGenerator) generate(ctx context.Context, req models.DraftRequest) (*models.Drafts, error) {
	reply, err := g.client.GenerateText(ctx, DraftPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("draft request failed: %w", err)
	}

	drafts, err := parser.ParseDrafts(reply)
	if err != nil {
		log.WithError(err).Warnf("AI returned non-JSON response for drafts: %.200s", reply)
		return nil, err
	}
	if drafts.DraftEN == "" && drafts.DraftBN == "" {
		log.Warn("AI returned a drafts object without draft_en or draft_bn")
	}
	return drafts, nil
}
