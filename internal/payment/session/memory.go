package session

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// Memory is an in-process session store. Each token is its own slot in a
// sync.Map, so operations on different tokens never contend.
type Memory struct {
	sessions sync.Map // token -> *domain.Session
}

// NewMemory creates an empty in-memory session store
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Put(ctx context.Context, s *domain.Session) error {
	stored := *s
	if _, loaded := m.sessions.LoadOrStore(s.Token, &stored); loaded {
		return ErrSessionExists
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, token string) (*domain.Session, error) {
	v, ok := m.sessions.Load(token)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s := *v.(*domain.Session)
	return &s, nil
}

func (m *Memory) Consume(ctx context.Context, token string) (*domain.Session, error) {
	v, ok := m.sessions.LoadAndDelete(token)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s := *v.(*domain.Session)
	return &s, nil
}

func (m *Memory) Delete(ctx context.Context, token string) error {
	m.sessions.Delete(token)
	return nil
}

func (m *Memory) ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	var expired []domain.Session
	m.sessions.Range(func(_, v any) bool {
		s := v.(*domain.Session)
		if s.ExpiredAt(cutoff) {
			expired = append(expired, *s)
		}
		return true
	})
	return expired, nil
}

func (m *Memory) Expire(ctx context.Context, token string, cutoff time.Time) (bool, error) {
	v, ok := m.sessions.Load(token)
	if !ok {
		return false, nil
	}
	if !v.(*domain.Session).ExpiredAt(cutoff) {
		return false, nil
	}
	// Fails if a concurrent Consume already took the slot
	return m.sessions.CompareAndDelete(token, v), nil
}

// Len returns the number of stored sessions
func (m *Memory) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (m *Memory) Close() error {
	return nil
}
