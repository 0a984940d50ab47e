package session

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBolt(t *testing.T) *Bolt {
	t.Helper()
	s, err := NewBolt(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"bolt":   newTestBolt(t),
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStore_ConsumeOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := &domain.Session{Token: "tok-1", JobID: "J1", CorrelationID: "C1", CreatedAt: base}
			require.NoError(t, store.Put(ctx, s))

			assert.ErrorIs(t, store.Put(ctx, s), ErrSessionExists)

			got, err := store.Get(ctx, "tok-1")
			require.NoError(t, err)
			assert.Equal(t, "J1", got.JobID)

			consumed, err := store.Consume(ctx, "tok-1")
			require.NoError(t, err)
			assert.Equal(t, "C1", consumed.CorrelationID)
			assert.True(t, consumed.CreatedAt.Equal(base))

			_, err = store.Consume(ctx, "tok-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)

			_, err = store.Get(ctx, "tok-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		})
	}
}

func TestStore_ExpireRespectsCutoff(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, &domain.Session{Token: "old", CreatedAt: base.Add(-20 * time.Minute)}))
			require.NoError(t, store.Put(ctx, &domain.Session{Token: "young", CreatedAt: base.Add(-5 * time.Minute)}))

			cutoff := base.Add(-15 * time.Minute)

			expired, err := store.ListExpired(ctx, cutoff)
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "old", expired[0].Token)

			deleted, err := store.Expire(ctx, "young", cutoff)
			require.NoError(t, err)
			assert.False(t, deleted)

			deleted, err = store.Expire(ctx, "old", cutoff)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Expire(ctx, "old", cutoff)
			require.NoError(t, err)
			assert.False(t, deleted)

			_, err = store.Get(ctx, "young")
			assert.NoError(t, err)
		})
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Delete(context.Background(), "missing"))
		})
	}
}

func TestStore_ConsumeRacesExpire(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cutoff := base

			for i := 0; i < 20; i++ {
				token := "race-" + string(rune('a'+i))
				require.NoError(t, store.Put(ctx, &domain.Session{Token: token, CreatedAt: base.Add(-time.Hour)}))

				var wins atomic.Int32
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					if _, err := store.Consume(ctx, token); err == nil {
						wins.Add(1)
					}
				}()
				go func() {
					defer wg.Done()
					if ok, err := store.Expire(ctx, token, cutoff); err == nil && ok {
						wins.Add(1)
					}
				}()
				wg.Wait()

				assert.Equal(t, int32(1), wins.Load(), "exactly one of consume/expire must win for %s", token)
			}
		})
	}
}

func TestMemory_Len(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, &domain.Session{Token: "a"}))
	require.NoError(t, m.Put(ctx, &domain.Session{Token: "b"}))
	assert.Equal(t, 2, m.Len())
}
