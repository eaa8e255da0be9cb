package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"schoolboard/server/common/auth"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

var fixedNow = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type fixture struct {
	store         *docstore.MemoryStore
	events        *recordingPublisher
	sessions      *SessionService
	conversations *ConversationService
	announcements *AnnouncementService
	directory     *DirectoryService
	rename        *RenameService
	accounts      *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	events := &recordingPublisher{}
	sessions := NewSessionService(store)
	directory := NewDirectoryService(store, sessions, time.Minute)
	f := &fixture{
		store:         store,
		events:        events,
		sessions:      sessions,
		conversations: NewConversationService(store, sessions, events, nil, 4),
		announcements: NewAnnouncementService(store, sessions, events),
		directory:     directory,
		rename:        NewRenameService(store, sessions, directory, events, 4),
		accounts:      NewAccountService(store, sessions, directory, auth.NewService("test-secret", 5)),
	}
	f.conversations.now = func() time.Time { return fixedNow }
	f.announcements.now = func() time.Time { return fixedNow }
	return f
}

// seedUser writes a user record and directory entry and returns a provided
// session for them.
func (f *fixture) seedUser(t *testing.T, email, first, last, display string, dean bool) *domain.Session {
	t.Helper()
	ctx := context.Background()
	safe := domain.SafeEmail(email)
	require.NoError(t, f.store.Set(ctx, safe, domain.User{
		FirstName:   first,
		LastName:    last,
		DisplayName: display,
		IsDean:      dean,
	}))
	require.NoError(t, f.directory.ReplaceEntry(ctx, domain.DirectoryEntry{
		FirstName: first, LastName: last, DisplayName: display, Email: safe,
	}))
	sess := domain.NewSession(email)
	require.NoError(t, f.sessions.ProvideSession(ctx, sess))
	return sess
}

func (f *fixture) entries(t *testing.T, email string) []domain.ConversationEntry {
	t.Helper()
	raw, err := f.store.Get(context.Background(), indexPath(domain.SafeEmail(email)))
	require.NoError(t, err)
	entries, failures, err := domain.DecodeConversationEntries(raw)
	require.NoError(t, err)
	require.Empty(t, failures)
	return entries
}

func textMessage(id, content string) domain.MessageInput {
	return domain.MessageInput{ID: id, Kind: domain.MessageKindText, Content: content}
}
