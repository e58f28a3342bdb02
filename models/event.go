package models

import "time"

// ReportSentEvent is published after a complaint e-mail was accepted by the transport.
type ReportSentEvent struct {
	Category      string    `json:"category"`
	AuthorityCity string    `json:"authority_city"`
	LocationName  string    `json:"location_name"`
	Recipient     string    `json:"recipient"`
	Transport     string    `json:"transport"`
	SentAt        time.Time `json:"sent_at"`
}
