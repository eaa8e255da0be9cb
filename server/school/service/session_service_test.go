package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"schoolboard/server/school/domain"
)

func TestProvideSessionIsIdempotentPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedUser(t, "ann@school.edu", "Ann", "Lee", "", false)

	first, ok := sess.Token()
	require.True(t, ok)
	require.Len(t, first, sessionTokenLength)

	require.NoError(t, f.sessions.ProvideSession(ctx, sess))
	second, _ := sess.Token()
	require.Equal(t, first, second)

	remote, err := f.store.Get(ctx, sessionPath("ann-school-edu"))
	require.NoError(t, err)
	require.Equal(t, first, remote)
}

func TestProvideSessionConcurrentCallersAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := domain.NewSession("ann@school.edu")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.sessions.ProvideSession(ctx, sess)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.True(t, f.sessions.VerifySession(ctx, sess))
}

func TestVerifySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedUser(t, "ann@school.edu", "Ann", "Lee", "", false)
	require.True(t, f.sessions.VerifySession(ctx, sess))

	require.False(t, f.sessions.VerifySession(ctx, domain.NewSession("ann@school.edu")))
	require.False(t, f.sessions.VerifySession(ctx, nil))

	require.NoError(t, f.store.Set(ctx, sessionPath("ann-school-edu"), "OTHER123"))
	require.False(t, f.sessions.VerifySession(ctx, sess))
}

func TestVerifyDeanNeverBypassesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dean := f.seedUser(t, "dean@school.edu", "Dana", "Ross", "", true)
	student := f.seedUser(t, "stu@school.edu", "Stu", "Dent", "", false)

	require.True(t, f.sessions.VerifyDean(ctx, dean))
	require.False(t, f.sessions.VerifyDean(ctx, student))

	stale := domain.RestoreSession("dean@school.edu", "WRONG000")
	require.False(t, f.sessions.VerifySession(ctx, stale))
	require.False(t, f.sessions.VerifyDean(ctx, stale))

	f.sessions.EndSession(ctx, dean)
	require.False(t, f.sessions.VerifySession(ctx, dean))
	require.False(t, f.sessions.VerifyDean(ctx, dean))
}

func TestEndSessionClearsBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.seedUser(t, "ann@school.edu", "Ann", "Lee", "", false)

	f.sessions.EndSession(ctx, sess)
	_, ok := sess.Token()
	require.False(t, ok)
	require.False(t, sess.Provided())
	_, err := f.store.Get(ctx, sessionPath("ann-school-edu"))
	require.Error(t, err)

	require.NoError(t, f.sessions.ProvideSession(ctx, sess))
	require.True(t, f.sessions.VerifySession(ctx, sess))
}

func TestRandomTokenAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		token, err := randomToken(sessionTokenLength)
		require.NoError(t, err)
		require.Len(t, token, sessionTokenLength)
		for _, r := range token {
			require.True(t, strings.ContainsRune(tokenAlphabet, r), "unexpected rune %q", r)
		}
	}
}
