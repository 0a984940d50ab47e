package domain

import (
	"encoding/json"
	"time"
)

// Session is a pending collection session: a client-visible token that
// resolves to an in-flight collection until it is consumed or expires
type Session struct {
	Token         string          `json:"token"`
	JobID         string          `json:"job_id"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ExpiredAt reports whether the session was created before cutoff
func (s *Session) ExpiredAt(cutoff time.Time) bool {
	return s.CreatedAt.Before(cutoff)
}
