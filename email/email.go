package email

import (
	"errors"
	"strings"
)

const (
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
)

var ErrInvalidMessage = errors.New("message needs a sender and a recipient")

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

func (m *Message) validate() error {
	if strings.TrimSpace(m.From) == "" || strings.TrimSpace(m.To) == "" {
		return ErrInvalidMessage
	}
	return nil
}
