package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Issue categories accepted by the wizard. The order is the order shown on the review page.
const (
	CategoryPothole       = "Pothole"
	CategoryGarbage       = "Accumulated Garbage"
	CategoryStreetLight   = "Street Light Outage"
	CategoryWaterLogging  = "Water Logging"
	CategoryBrokenSignage = "Broken Signage"
	CategoryFallenTree    = "Fallen Tree"
	CategoryOther         = "Other"
)

const (
	DefaultSeverity = 5
	MinSeverity     = 1
	MaxSeverity     = 10

	// LocationNotProvided is what the capture page sends when geolocation was denied.
	LocationNotProvided     = "N/A"
	DefaultSuccessRecipient = "the responsible authority"
)

// Stable error codes returned in JSON error bodies.
const (
	ErrCodeAPIKeyNotFound            = "API_KEY_NOT_FOUND"
	ErrCodeNoImage                   = "No image provided"
	ErrCodeImageTooLarge             = "IMAGE_TOO_LARGE"
	ErrCodeAnalysisFailed            = "AI_ANALYSIS_FAILED"
	ErrCodeDraftGenerationFailed     = "DRAFT_GENERATION_FAILED"
	ErrCodeSenderCredentialsNotFound = "SENDER_CREDENTIALS_NOT_FOUND"
	ErrCodeEmailSendFailed           = "EMAIL_SEND_FAILED"
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
)

// Categories lists every issue category.
var Categories = []string{
	CategoryPothole,
	CategoryGarbage,
	CategoryStreetLight,
	CategoryWaterLogging,
	CategoryBrokenSignage,
	CategoryFallenTree,
	CategoryOther,
}

// NormalizeCategory maps free text onto the canonical category spelling, or Other.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, c) {
			return c
		}
	}
	return CategoryOther
}

// OrNotProvided returns s, or LocationNotProvided when s is empty.
func OrNotProvided(s string) string {
	if s == "" {
		return LocationNotProvided
	}
	return s
}

// Severity is an urgency score in 1..10. It decodes from JSON numbers and numeric strings.
type Severity int

// UnmarshalJSON accepts 7, 7.4, "7" and "7.4". Anything non-numeric becomes the default.
func (s *Severity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = DefaultSeverity
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// ParseSeverity coerces an arbitrary decoded JSON value to a Severity.
func ParseSeverity(v interface{}) Severity {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return DefaultSeverity
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return DefaultSeverity
		}
		f = n
	default:
		return DefaultSeverity
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultSeverity
	}
	n := int(math.Round(f))
	if n < MinSeverity {
		n = MinSeverity
	}
	if n > MaxSeverity {
		n = MaxSeverity
	}
	return Severity(n)
}

// Analysis is the response of POST /analyze.
type Analysis struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Lat      string   `json:"lat"`
	Lon      string   `json:"lon"`
	Error    string   `json:"error,omitempty"`
}

// DraftRequest is the body of POST /generate_drafts.
type DraftRequest struct {
	AuthorityName string   `json:"authority_name"`
	Category      string   `json:"category"`
	Severity      Severity `json:"severity"`
	LocationName  string   `json:"location_name"`
}

// Drafts holds the two localized complaint drafts.
type Drafts struct {
	DraftEN string `json:"draft_en"`
	DraftBN string `json:"draft_bn"`
}

// SubmitRequest is the body of POST /submit_report.
type SubmitRequest struct {
	Category      string `json:"category"`
	LocationName  string `json:"location_name"`
	DraftEN       string `json:"draft_en"`
	AuthorityCity string `json:"authority_city"`
}

// SubmitResponse is returned after a successful send.
type SubmitResponse struct {
	Success   bool   `json:"success"`
	Recipient string `json:"recipient"`
	Token     string `json:"token,omitempty"`
}

// ErrorResponse is the JSON error body used by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
