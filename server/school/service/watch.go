package service

import (
	"context"
	"errors"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

// Snapshot is one decoded reading of a list path.
type Snapshot[T any] struct {
	Items    []T                    `json:"items"`
	Failures []domain.DecodeFailure `json:"failures,omitempty"`
	Missing  bool                   `json:"missing,omitempty"`
}

type decodeFunc[T any] func(raw any) ([]T, []domain.DecodeFailure, error)

func readSnapshot[T any](ctx context.Context, store docstore.Store, path string, decode decodeFunc[T]) (Snapshot[T], error) {
	raw, err := store.Get(ctx, path)
	if err != nil {
		return Snapshot[T]{}, fetchError(path, err)
	}
	return toSnapshot(path, raw, decode)
}

func toSnapshot[T any](path string, raw any, decode decodeFunc[T]) (Snapshot[T], error) {
	items, failures, err := decode(raw)
	if err != nil {
		return Snapshot[T]{}, err
	}
	if len(failures) > 0 {
		commonlog.Warnf("event=school_decode status=partial path=%s dropped=%d", path, len(failures))
	}
	return Snapshot[T]{Items: items, Failures: failures}, nil
}

// watch turns a store subscription into decoded snapshots. A missing or
// malformed value yields an empty snapshot flagged Missing rather than
// ending the stream. The channel closes when ctx is done.
func watch[T any](ctx context.Context, store docstore.Store, path string, decode decodeFunc[T]) (<-chan Snapshot[T], error) {
	sub, err := store.Observe(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(chan Snapshot[T], 1)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.C:
				if !ok {
					return
				}
				snap, err := toSnapshot(path, raw, decode)
				if err != nil {
					if !errors.Is(err, domain.ErrFetchFailed) {
						commonlog.Warnf("event=school_watch status=failed path=%s error=%v", path, err)
					}
					snap = Snapshot[T]{Items: []T{}, Missing: true}
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
