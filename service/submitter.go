package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"sahayak/authority"
	"sahayak/email"
	"sahayak/metrics"
	"sahayak/models"
)

var (
	ErrSenderCredentials = errors.New("sender credentials not configured")
	ErrSendFailed        = errors.New("email send failed")
)

// Mailer delivers one message. Implementations make a single attempt.
type Mailer interface {
	Send(ctx context.Context, msg *email.Message) error
	Transport() string
}

// EventPublisher publishes report events; *rabbitmq.Publisher implements it.
type EventPublisher interface {
	Publish(message interface{}) error
}

// Submitter resolves the recipient for a confirmed report and mails the English draft.
type Submitter struct {
	store     *authority.Store
	mailer    Mailer
	sender    string
	publisher EventPublisher
	signer    *RecipientSigner
}

// NewSubmitter wires the submitter. A nil mailer means no sender credentials are
// configured; publisher and signer are optional.
func NewSubmitter(store *authority.Store, mailer Mailer, sender string, publisher EventPublisher, signer *RecipientSigner) *Submitter {
	return &Submitter{
		store:     store,
		mailer:    mailer,
		sender:    sender,
		publisher: publisher,
		signer:    signer,
	}
}

// Subject is the mail subject for a report.
func Subject(category, authorityCity string) string {
	return fmt.Sprintf("Civic Issue Report: %s in %s", category, authorityCity)
}

// ComposeBody prefixes the draft with the location unless the draft already mentions it.
func ComposeBody(locationName, draft string) string {
	if locationName != "" && !strings.Contains(strings.ToLower(draft), strings.ToLower(locationName)) {
		return fmt.Sprintf("Location Address: %s\n\n---\n%s", locationName, draft)
	}
	return draft
}

// Recipient resolves the address a report for category at authorityCity is sent to.
func (s *Submitter) Recipient(authorityCity, category string) string {
	return s.store.Registry().Recipient(authorityCity, category)
}

// Submit sends the report once. It returns ErrSenderCredentials without touching the
// network when no mailer is configured, and wraps transport errors in ErrSendFailed.
func (s *Submitter) Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error) {
	recipient := s.Recipient(req.AuthorityCity, req.Category)

	if s.mailer == nil || s.sender == "" {
		return nil, ErrSenderCredentials
	}

	msg := &email.Message{
		From:    s.sender,
		To:      recipient,
		Subject: Subject(req.Category, req.AuthorityCity),
		Body:    ComposeBody(req.LocationName, req.DraftEN),
	}

	transport := s.mailer.Transport()
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.EmailsTotal.WithLabelValues(transport, metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	metrics.EmailsTotal.WithLabelValues(transport, metrics.ResultOK).Inc()
	log.WithFields(log.Fields{
		"recipient": recipient,
		"category":  req.Category,
		"transport": transport,
	}).Info("Report email sent")

	s.publishSent(req, recipient, transport)

	resp := &models.SubmitResponse{Success: true, Recipient: recipient}
	if s.signer != nil {
		resp.Token = s.signer.Sign(recipient)
	}
	return resp, nil
}

func (s *Submitter) publishSent(req models.SubmitRequest, recipient, transport string) {
	if s.publisher == nil {
		return
	}
	event := models.ReportSentEvent{
		Category:      req.Category,
		AuthorityCity: req.AuthorityCity,
		LocationName:  req.LocationName,
		Recipient:     recipient,
		Transport:     transport,
		SentAt:        time.Now().UTC(),
	}
	if err := s.publisher.Publish(event); err != nil {
		metrics.EventPublishErrorTotal.Inc()
		log.WithError(err).Warn("Failed to publish report sent event")
	}
}
