// Package docstore is a path-addressed JSON document store with continuous
// observation. Backends share the same tree semantics: values are normalized
// to JSON shapes, a nil value deletes the addressed subtree, and numeric path
// segments index into arrays.
package docstore

import (
	"context"
	"errors"
	"sync"

	commonlog "schoolboard/server/common/log"
)

var (
	ErrNotFound = errors.New("docstore: path not found")
	ErrRootPath = errors.New("docstore: root path is not addressable")
	ErrConflict = errors.New("docstore: concurrent update retries exhausted")
	ErrClosed   = errors.New("docstore: store is closed")
)

// UpdateFunc receives a private copy of the current value (nil when absent)
// and returns the value to store in its place.
type UpdateFunc func(current any) (any, error)

type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fn UpdateFunc) error
	Observe(ctx context.Context, path string) (*Subscription, error)
	Close() error
}

// Subscription delivers the latest value at the observed path. The first
// value is the current one; later values follow overlapping writes. Values
// are coalesced so a slow reader only sees the most recent state.
type Subscription struct {
	C <-chan any

	cancel context.CancelFunc
	done   <-chan struct{}
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// observer is the shared consumer loop: every signal re-reads the path and
// offers the value to the subscriber.
type observer struct {
	path string
	out  chan any
	done chan struct{}
	read func(ctx context.Context) (any, error)
}

func newObserver(path string, read func(ctx context.Context) (any, error)) *observer {
	return &observer{
		path: path,
		out:  make(chan any, 1),
		done: make(chan struct{}),
		read: read,
	}
}

func (o *observer) subscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{C: o.out, cancel: cancel, done: o.done}
}

func (o *observer) emit(ctx context.Context) {
	v, err := o.read(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if ctx.Err() == nil {
			commonlog.Warnf("event=docstore_observe action=read status=failed path=%s error=%v", o.path, err)
		}
		return
	}
	offer(o.out, v)
}

func (o *observer) finish() {
	close(o.out)
	close(o.done)
}

// pathWatcher is a registered observation; signal holds at most one pending
// wakeup.
type pathWatcher struct {
	segments []string
	signal   chan struct{}
}

func newPathWatcher(path string) *pathWatcher {
	w := &pathWatcher{segments: SplitPath(path), signal: make(chan struct{}, 1)}
	w.signal <- struct{}{}
	return w
}

func (w *pathWatcher) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func offer(ch chan any, v any) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
