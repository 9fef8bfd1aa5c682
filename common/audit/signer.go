// Package audit signs published run summaries so consumers can tell they
// came from the sync engine.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the hex HMAC-SHA256 of the run id, its finish time and the
// message body.
func (s *Signer) Sign(runID string, finishedAt time.Time, data []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(runID))
	h.Write([]byte(finishedAt.UTC().Format(time.RFC3339Nano)))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) Verify(runID string, finishedAt time.Time, data []byte, signature string) bool {
	expected := s.Sign(runID, finishedAt, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}
