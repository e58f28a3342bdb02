package service

import (
	"context"
	"time"

	"github.com/apex/log"

	"sahayak/image"
	"sahayak/llm"
	"sahayak/metrics"
	"sahayak/models"
	"sahayak/parser"
)

// ClassificationPrompt is the fixed instruction sent alongside every uploaded photo.
const ClassificationPrompt = "You are an AI assistant for civic issue reporting. Analyze the image and classify the issue. " +
	"Return a single minified JSON with ONLY these keys: 'category' (string) and 'severity' (integer 1-10)."

// DefaultMaxUploadBytes bounds an /analyze request body when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// ImageLimits bounds the uploads the classifier accepts. Zero values use the defaults.
type ImageLimits struct {
	// MaxDimension is the longer-side bound JPEGs are scaled down to.
	MaxDimension   int
	// MaxPixels caps the width*height an image header may declare.
	MaxPixels      int
	MaxUploadBytes int64
}

// Classifier turns an uploaded photo into a category and severity.
type Classifier struct {
	client llm.Client
	limits ImageLimits
}

func NewClassifier(client llm.Client, limits ImageLimits) *Classifier {
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = image.DefaultMaxPixels
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Classifier{client: client, limits: limits}
}

// MaxUploadBytes is the largest request body the upload handler should read.
func (c *Classifier) MaxUploadBytes() int64 {
	return c.limits.MaxUploadBytes
}

// Classify never fails: any decode, service or parse error yields the default
// classification tagged with AI_ANALYSIS_FAILED. Coordinates are echoed as given.
func (c *Classifier) Classify(ctx context.Context, data []byte, lat, lon string) models.Analysis {
	start := time.Now()
	defer func() {
		metrics.ClassificationDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	result := models.Analysis{
		Category: models.CategoryOther,
		Severity: models.DefaultSeverity,
		Lat:      lat,
		Lon:      lon,
	}

	classification, err := c.classify(ctx, data)
	if err != nil {
		log.WithError(err).Warn("Image classification failed, using defaults")
		metrics.ClassificationsTotal.WithLabelValues(metrics.ResultDegraded).Inc()
		result.Error = models.ErrCodeAnalysisFailed
		return result
	}

	metrics.ClassificationsTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.CategoriesTotal.WithLabelValues(classification.Category).Inc()
	result.Category = classification.Category
	result.Severity = classification.Severity
	return result
}

func (c *Classifier) classify(ctx context.Context, data []byte) (*parser.Classification, error) {
	normalized, err := image.Normalize(data, c.limits.MaxDimension, c.limits.MaxPixels)
	if err != nil {
		return nil, err
	}
	log.Debugf("Classifying %s upload (%d bytes) as %s with %s",
		normalized.Format, len(normalized.Data), normalized.MIMEType, c.client.SourceName())

	reply, err := c.client.AnalyzeImage(ctx, ClassificationPrompt, normalized.Data, normalized.MIMEType)
	if err != nil {
		return nil, err
	}
	return parser.ParseClassification(reply)
}
