package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	commonlog "schoolboard/server/common/log"
)

const (
	defaultPostgresChannel = "docstore_changes"
	listenRetryMin         = time.Second
	listenRetryMax         = 30 * time.Second
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	root       TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps one JSONB row per top-level path segment. Updates take
// a transaction-scoped advisory lock on the root, which also serializes the
// first insert of a root that does not exist yet.
type PostgresStore struct {
	pool    *pgxpool.Pool
	channel string

	mu         sync.Mutex
	watchers   map[*pathWatcher]struct{}
	stopListen context.CancelFunc
	listenDone chan struct{}
	closed     bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		channel:  defaultPostgresChannel,
		watchers: map[*pathWatcher]struct{}{},
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadPostgresRoot(ctx context.Context, q rowQuerier, root string) (any, error) {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT body FROM documents WHERE root=$1`, root).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", root, err)
	}
	return doc, nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (any, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, ErrRootPath
	}
	doc, err := loadPostgresRoot(ctx, s.pool, segments[0])
	if err != nil {
		return nil, err
	}
	v, ok := valueAt(doc, segments[1:])
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, path, func(any) (any, error) { return value, nil })
}

func (s *PostgresStore) Update(ctx context.Context, path string, fn UpdateFunc) error {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return ErrRootPath
	}
	root := segments[0]

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, root); err != nil {
			return fmt.Errorf("lock document %s: %w", root, err)
		}
		doc, err := loadPostgresRoot(ctx, tx, root)
		if err != nil {
			return err
		}
		current, _ := valueAt(doc, segments[1:])
		next, err := fn(cloneValue(current))
		if err != nil {
			return err
		}
		normalized, err := Normalize(next)
		if err != nil {
			return err
		}
		updated := withValueAt(doc, segments[1:], normalized)
		if updated == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE root=$1`, root); err != nil {
				return err
			}
		} else {
			payload, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents(root, body)
				VALUES($1, $2::jsonb)
				ON CONFLICT (root)
				DO UPDATE SET body=EXCLUDED.body, version=documents.version+1, updated_at=NOW()
			`, root, string(payload)); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, JoinPath(segments...))
		return err
	})
}

// Observe registers a watcher with the store's single listener. The
// listener owns one dedicated connection outside the pool, so open
// subscriptions never take connections away from reads and writes.
func (s *PostgresStore) Observe(ctx context.Context, path string) (*Subscription, error) {
	if len(SplitPath(path)) == 0 {
		return nil, ErrRootPath
	}
	w := newPathWatcher(path)
	if err := s.addWatcher(ctx, w); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	obs := newObserver(path, func(ctx context.Context) (any, error) { return s.Get(ctx, path) })
	go func() {
		defer obs.finish()
		defer s.removeWatcher(w)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-w.signal:
				obs.emit(subCtx)
			}
		}
	}()
	return obs.subscription(cancel), nil
}

func (s *PostgresStore) addWatcher(ctx context.Context, w *pathWatcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.stopListen == nil {
		conn, err := s.listenConn(ctx)
		if err != nil {
			return err
		}
		listenCtx, cancel := context.WithCancel(context.Background())
		s.stopListen = cancel
		s.listenDone = make(chan struct{})
		go s.listen(listenCtx, conn)
	}
	s.watchers[w] = struct{}{}
	return nil
}

func (s *PostgresStore) removeWatcher(w *pathWatcher) {
	s.mu.Lock()
	delete(s.watchers, w)
	s.mu.Unlock()
}

// wake signals the watchers overlapping segments, or all of them when
// segments is nil.
func (s *PostgresStore) wake(segments []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		if segments == nil || overlaps(w.segments, segments) {
			w.wake()
		}
	}
}

func (s *PostgresStore) listenConn(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", s.channel, err)
	}
	return conn, nil
}

// listen forwards notifications until ctx ends. A dropped connection is
// reopened with backoff; every watcher is woken afterwards since changes may
// have been missed in between.
func (s *PostgresStore) listen(ctx context.Context, conn *pgx.Conn) {
	defer close(s.listenDone)
	backoff := listenRetryMin
	for {
		n, err := conn.WaitForNotification(ctx)
		if err == nil {
			s.wake(SplitPath(n.Payload))
			continue
		}
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		commonlog.Errorf("event=docstore_listen backend=postgres status=failed channel=%s error=%v", s.channel, err)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			conn, err = s.listenConn(ctx)
			if err == nil {
				break
			}
			commonlog.Warnf("event=docstore_listen action=reconnect status=failed channel=%s error=%v", s.channel, err)
			backoff = min(backoff*2, listenRetryMax)
		}
		backoff = listenRetryMin
		commonlog.Infof("event=docstore_listen action=reconnect status=ok channel=%s", s.channel)
		s.wake(nil)
	}
}

// Close stops the listener. Open subscriptions keep their last value and
// receive no further changes.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	s.closed = true
	stop, done := s.stopListen, s.listenDone
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	return nil
}
