package docstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get missing returns not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "missing-root/child")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get nested", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "a-b-com", map[string]any{"email": "a@b.com", "grade": 9}))
		require.NoError(t, s.Set(ctx, "a-b-com/display_name", "Ann"))

		v, err := s.Get(ctx, "a-b-com")
		require.NoError(t, err)
		m := v.(map[string]any)
		require.Equal(t, "a@b.com", m["email"])
		require.Equal(t, float64(9), m["grade"])
		require.Equal(t, "Ann", m["display_name"])
	})

	t.Run("set nil deletes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "conversations/c1", map[string]any{"x": 1}))
		require.NoError(t, s.Set(ctx, "conversations/c1", nil))
		_, err := s.Get(ctx, "conversations/c1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("array index addressing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "grades", []any{map[string]any{"grade": 9}, map[string]any{"grade": 11}}))
		require.NoError(t, s.Set(ctx, "grades/1/pinned", true))
		v, err := s.Get(ctx, "grades/1/pinned")
		require.NoError(t, err)
		require.Equal(t, true, v)
	})

	t.Run("update is atomic under contention", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Update(ctx, "counter/list", func(current any) (any, error) {
					list, _ := current.([]any)
					return append(list, fmt.Sprintf("w%d", i)), nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		v, err := s.Get(ctx, "counter/list")
		require.NoError(t, err)
		require.Len(t, v.([]any), writers)
	})

	t.Run("update error leaves value untouched", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "k", "v1"))
		boom := fmt.Errorf("boom")
		err := s.Update(ctx, "k", func(any) (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
		v, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v1", v)
	})

	t.Run("observe delivers initial and subsequent values", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "obs/value", "first"))

		sub, err := s.Observe(ctx, "obs/value")
		require.NoError(t, err)
		defer sub.Close()

		require.Equal(t, "first", waitValue(t, sub))
		require.NoError(t, s.Set(ctx, "obs/value", "second"))
		require.Eventually(t, func() bool {
			select {
			case v := <-sub.C:
				return v == "second"
			default:
				return false
			}
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("observe missing path delivers nil", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Observe(context.Background(), "nobody/here")
		require.NoError(t, err)
		defer sub.Close()
		require.Nil(t, waitValue(t, sub))
	})

	t.Run("closing subscription closes channel", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Observe(context.Background(), "closing/path")
		require.NoError(t, err)
		sub.Close()
		for range sub.C {
		}
	})
}

func waitValue(t *testing.T, sub *Subscription) any {
	t.Helper()
	select {
	case v, ok := <-sub.C:
		require.True(t, ok, "subscription closed early")
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for observed value")
		return nil
	}
}

func TestMemoryStoreConformance(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestRedisStoreConformance(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	runStoreConformance(t, func(t *testing.T) Store {
		client := redis.NewClient(&redis.Options{Addr: addr})
		require.NoError(t, client.FlushDB(context.Background()).Err())
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client)
	})
}

func TestPostgresStoreConformance(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	runStoreConformance(t, func(t *testing.T) Store {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		store := NewPostgresStore(pool)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.EnsureSchema(ctx))
		_, err = pool.Exec(ctx, `TRUNCATE documents`)
		require.NoError(t, err)
		return store
	})
}

func TestPostgresSubscriptionsDoNotHoldPoolConnections(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	store := NewPostgresStore(pool)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE documents`)
	require.NoError(t, err)

	subs := make([]*Subscription, 0, 6)
	for i := 0; i < 6; i++ {
		sub, err := store.Observe(ctx, fmt.Sprintf("watch-%d", i))
		require.NoError(t, err)
		subs = append(subs, sub)
	}
	t.Cleanup(func() {
		for _, sub := range subs {
			sub.Close()
		}
	})

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, store.Set(writeCtx, "watch-5", "hello"))
	v, err := store.Get(writeCtx, "watch-5")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	require.Eventually(t, func() bool {
		select {
		case v := <-subs[5].C:
			return v == "hello"
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}
