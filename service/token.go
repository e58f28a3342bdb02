package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// RecipientSigner signs the recipient shown on the success page so the page cannot be
// used to display arbitrary text.
type RecipientSigner struct {
	key []byte
}

func NewRecipientSigner(secret string) *RecipientSigner {
	return &RecipientSigner{key: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of recipient.
func (s *RecipientSigner) Sign(recipient string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(recipient))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token was produced by Sign for recipient.
func (s *RecipientSigner) Verify(recipient, token string) bool {
	if recipient == "" || token == "" {
		return false
	}
	want, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(recipient))
	return hmac.Equal(mac.Sum(nil), want)
}
