package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

const bucketName = "pending_sessions"

// Bolt is a session store persisted in a single BoltDB file, so pending
// sessions survive a restart of the api-service
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the BoltDB file at path and ensures the bucket exists
func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Put(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(s.Token)) != nil {
			return ErrSessionExists
		}
		return bucket.Put([]byte(s.Token), data)
	})
}

func (b *Bolt) Get(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session

	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(token))
		if v == nil {
			return domain.ErrSessionNotFound
		}
		return json.Unmarshal(v, &s)
	})
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (b *Bolt) Consume(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		v := bucket.Get([]byte(token))
		if v == nil {
			return domain.ErrSessionNotFound
		}
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		return bucket.Delete([]byte(token))
	})
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// Delete is a no-op for a missing token
func (b *Bolt) Delete(ctx context.Context, token string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(token))
	})
}

func (b *Bolt) ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	var expired []domain.Session

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var s domain.Session
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("failed to decode session %q: %w", k, err)
			}
			if s.ExpiredAt(cutoff) {
				expired = append(expired, s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}

func (b *Bolt) Expire(ctx context.Context, token string, cutoff time.Time) (bool, error) {
	deleted := false

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		v := bucket.Get([]byte(token))
		if v == nil {
			return nil
		}

		var s domain.Session
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		if !s.ExpiredAt(cutoff) {
			return nil
		}

		deleted = true
		return bucket.Delete([]byte(token))
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}
