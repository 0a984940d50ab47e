// Package session stores pending collection sessions.
//
// A session is consumed exactly once or expired by the sweeper. Both Consume
// and Expire are check-then-delete operations on a single token slot, so when
// they race exactly one of them observes the session.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// ErrSessionExists is returned when a token is already stored
var ErrSessionExists = errors.New("session already exists")

// Store is the pending collection session store
type Store interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	// Consume removes and returns the session; a second call reports ErrSessionNotFound
	Consume(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
	ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Session, error)
	// Expire deletes the session only if it is still present and created before cutoff
	Expire(ctx context.Context, token string, cutoff time.Time) (bool, error)
	Close() error
}
