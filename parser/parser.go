package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sahayak/models"
)

var (
	ErrNoJSON       = errors.New("response does not contain a JSON object")
	ErrMissingField = errors.New("response is missing a required field")
)

// Classification is the category/severity pair read from an image analysis reply.
type Classification struct {
	Category string
	Severity models.Severity
}

// StripFences removes markdown code fence markers (``` and ```json) and surrounding space.
func StripFences(response string) string {
	s := strings.ReplaceAll(response, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the JSON object carried by an AI reply. Fences are stripped
// first; if the remainder is still wrapped in prose, the outermost braces are used.
func ExtractJSON(response string) (string, error) {
	s := StripFences(response)
	if json.Valid([]byte(s)) {
		return s, nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", ErrNoJSON
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", ErrNoJSON
	}
	return candidate, nil
}

// ParseClassification reads category and severity from an analysis reply. Both keys
// must be present; the category is coerced onto the known list.
func ParseClassification(response string) (*Classification, error) {
	content, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	rawCategory, ok := raw["category"]
	if !ok {
		return nil, fmt.Errorf("%w: category", ErrMissingField)
	}
	rawSeverity, ok := raw["severity"]
	if !ok {
		return nil, fmt.Errorf("%w: severity", ErrMissingField)
	}

	var category string
	if err := json.Unmarshal(rawCategory, &category); err != nil {
		return nil, fmt.Errorf("category is not a string: %w", err)
	}
	var severity models.Severity
	if err := json.Unmarshal(rawSeverity, &severity); err != nil {
		return nil, fmt.Errorf("invalid severity: %w", err)
	}

	return &Classification{
		Category: models.NormalizeCategory(category),
		Severity: severity,
	}, nil
}

// ParseDrafts reads the two localized drafts from a draft generation reply.
func ParseDrafts(response string) (*models.Drafts, error) {
	content, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var drafts models.Drafts
	if err := json.Unmarshal([]byte(content), &drafts); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &drafts, nil
}
