package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

const defaultDirectoryCacheTTL = 60 * time.Second

// cachedDirectory is one user's copy, valid only for the session token it
// was fetched under.
type cachedDirectory struct {
	token     string
	entries   []domain.DirectoryEntry
	fetchedAt time.Time
}

type DirectoryService struct {
	store    docstore.Store
	sessions *SessionService
	mu       sync.RWMutex
	cache    map[string]cachedDirectory
	cacheTTL time.Duration
	now      func() time.Time
}

func NewDirectoryService(store docstore.Store, sessions *SessionService, cacheTTL time.Duration) *DirectoryService {
	if cacheTTL <= 0 {
		cacheTTL = defaultDirectoryCacheTTL
	}
	return &DirectoryService{
		store:    store,
		sessions: sessions,
		cache:    map[string]cachedDirectory{},
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// SearchUsers matches query against the start of display, first or last
// names, ignoring case. The caller is never included. An empty query
// returns everyone.
func (s *DirectoryService) SearchUsers(ctx context.Context, sess *domain.Session, query string) ([]domain.DirectoryEntry, error) {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return nil, err
	}
	entries, err := s.entries(ctx, sess)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	self := sess.SafeEmail()
	out := make([]domain.DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Email == self {
			continue
		}
		if q == "" || matchesPrefix(q, entry.DisplayName, entry.FirstName, entry.LastName) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})
	return out, nil
}

func matchesPrefix(q string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.HasPrefix(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (s *DirectoryService) entries(ctx context.Context, sess *domain.Session) ([]domain.DirectoryEntry, error) {
	token, _ := sess.Token()
	key := sess.SafeEmail()
	now := s.now()

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && cached.token == token && now.Sub(cached.fetchedAt) < s.cacheTTL {
		s.mu.RUnlock()
		return cached.entries, nil
	}
	s.mu.RUnlock()

	raw, err := s.store.Get(ctx, directoryPath)
	if err != nil {
		return nil, fetchError("directory", err)
	}
	entries, failures, err := domain.DecodeDirectory(raw)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		commonlog.Warnf("event=directory_decode status=partial dropped=%d", len(failures))
	}

	s.mu.Lock()
	for k, cached := range s.cache {
		if now.Sub(cached.fetchedAt) >= s.cacheTTL {
			delete(s.cache, k)
		}
	}
	s.cache[key] = cachedDirectory{token: token, entries: entries, fetchedAt: now}
	s.mu.Unlock()
	return entries, nil
}

func (s *DirectoryService) cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Invalidate drops every cached directory, so the next search refetches.
func (s *DirectoryService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string]cachedDirectory{}
}

// ReplaceEntry removes any entry with the same email and appends entry.
func (s *DirectoryService) ReplaceEntry(ctx context.Context, entry domain.DirectoryEntry) error {
	normalized, err := docstore.Normalize(entry)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, directoryPath, func(current any) (any, error) {
		list := asList(current)
		out := make([]any, 0, len(list)+1)
		for _, item := range list {
			if email, _ := asMap(item)["email"].(string); email == entry.Email {
				continue
			}
			out = append(out, item)
		}
		return append(out, normalized), nil
	})
	if err == nil {
		s.Invalidate()
	}
	return err
}
