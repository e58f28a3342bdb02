package email

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client   *sendgrid.Client
	fromName string
}

// NewSendGridMailer creates a mailer. host overrides the API host and is empty in
// production.
func NewSendGridMailer(apiKey, fromName, host string) *SendGridMailer {
	if host == "" {
		return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), fromName: fromName}
	}
	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridMailer{client: &sendgrid.Client{Request: request}, fromName: fromName}
}

func (m *SendGridMailer) Transport() string { return TransportSendGrid }

func (m *SendGridMailer) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	message := sgmail.NewV3Mail()
	message.SetFrom(sgmail.NewEmail(m.fromName, msg.From))
	message.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", msg.To))
	message.AddPersonalizations(p)

	message.AddContent(sgmail.NewContent("text/plain", msg.Body))

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	log.Infof("Email sent to %s! Status: %d", msg.To, response.StatusCode)
	return nil
}
