package docstore

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	root     any
	watchers map[*pathWatcher]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watchers: map[*pathWatcher]struct{}{}}
}

func (s *MemoryStore) Get(_ context.Context, path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := valueAt(s.root, SplitPath(path))
	if !ok {
		return nil, ErrNotFound
	}
	return cloneValue(v), nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, path, func(any) (any, error) { return value, nil })
}

func (s *MemoryStore) Update(ctx context.Context, path string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segments := SplitPath(path)

	s.mu.Lock()
	current, _ := valueAt(s.root, segments)
	next, err := fn(cloneValue(current))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	normalized, err := Normalize(next)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.root = withValueAt(s.root, segments, normalized)
	targets := make([]*pathWatcher, 0, len(s.watchers))
	for w := range s.watchers {
		if overlaps(w.segments, segments) {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	for _, w := range targets {
		w.wake()
	}
	return nil
}

func (s *MemoryStore) Observe(ctx context.Context, path string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := newPathWatcher(path)

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	obs := newObserver(path, func(ctx context.Context) (any, error) { return s.Get(ctx, path) })
	go func() {
		defer obs.finish()
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
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

func (s *MemoryStore) Close() error {
	return nil
}
