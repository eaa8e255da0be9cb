package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	commonlog "schoolboard/server/common/log"
)

const (
	defaultRedisPrefix     = "docstore:"
	defaultRedisChannel    = "docstore:changes"
	defaultRedisMaxRetries = 8
)

// RedisStore keeps one JSON document per top-level path segment. Writes are
// WATCH/MULTI transactions on that document, so two writers touching the same
// root retry instead of overwriting each other.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	channel    string
	maxRetries int
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     defaultRedisPrefix,
		channel:    defaultRedisChannel,
		maxRetries: defaultRedisMaxRetries,
	}
}

func (s *RedisStore) key(root string) string {
	return s.prefix + root
}

func (s *RedisStore) loadRoot(ctx context.Context, g stringGetter, key string) (any, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

func (s *RedisStore) Get(ctx context.Context, path string) (any, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, ErrRootPath
	}
	doc, err := s.loadRoot(ctx, s.client, s.key(segments[0]))
	if err != nil {
		return nil, err
	}
	v, ok := valueAt(doc, segments[1:])
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, path, func(any) (any, error) { return value, nil })
}

func (s *RedisStore) Update(ctx context.Context, path string, fn UpdateFunc) error {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return ErrRootPath
	}
	key := s.key(segments[0])

	txf := func(tx *redis.Tx) error {
		doc, err := s.loadRoot(ctx, tx, key)
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
		var payload []byte
		if updated != nil {
			if payload, err = json.Marshal(updated); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if payload == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			if pubErr := s.client.Publish(ctx, s.channel, JoinPath(segments...)).Err(); pubErr != nil {
				commonlog.Warnf("event=docstore_notify backend=redis status=failed path=%s error=%v", path, pubErr)
			}
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", path, ErrConflict)
}

func (s *RedisStore) Observe(ctx context.Context, path string) (*Subscription, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, ErrRootPath
	}
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(subCtx, s.channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		_ = pubsub.Close()
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	obs := newObserver(path, func(ctx context.Context) (any, error) { return s.Get(ctx, path) })
	go func() {
		defer obs.finish()
		defer pubsub.Close()
		obs.emit(subCtx)
		changes := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-changes:
				if !ok {
					return
				}
				if overlaps(SplitPath(msg.Payload), segments) {
					obs.emit(subCtx)
				}
			}
		}
	}()
	return obs.subscription(cancel), nil
}

func (s *RedisStore) Close() error {
	return nil
}
