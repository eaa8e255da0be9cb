package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"schoolboard/server/common/auth"
	"schoolboard/server/school/domain"
)

func TestRegisterLoginLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grade := 10
	reg := domain.Registration{
		Email: "Ann.Lee@School.edu", Password: "hunter22", FirstName: "Ann", LastName: "Lee", Grade: &grade,
	}
	require.NoError(t, f.accounts.Register(ctx, reg))
	require.ErrorIs(t, f.accounts.Register(ctx, reg), domain.ErrAlreadyExists)

	exists, err := f.accounts.UserExists(ctx, "ann.lee@school.edu")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = f.accounts.Login(ctx, "ann.lee@school.edu", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.accounts.Login(ctx, "nobody@school.edu", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := f.accounts.Login(ctx, "ann.lee@school.edu", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "ann-lee-school-edu", res.Email)
	require.False(t, res.IsDean)

	email, sid, err := auth.NewService("test-secret", 5).ParseAuthContext(res.AccessToken)
	require.NoError(t, err)
	restored := domain.RestoreSession(email, sid)
	require.True(t, f.sessions.VerifySession(ctx, restored))

	f.accounts.Logout(ctx, restored)
	require.False(t, f.sessions.VerifySession(ctx, res.Session))
}

func TestRegisterValidates(t *testing.T) {
	f := newFixture(t)
	err := f.accounts.Register(context.Background(), domain.Registration{Email: "not-an-email", Password: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterRejectsPathInEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dean := f.seedUser(t, "ann@school.edu", "Ann", "Lee", "Ann", true)
	for _, grade := range []int{9, 10} {
		require.NoError(t, f.announcements.CreateGrade(ctx, dean, grade))
	}

	for _, email := range []string{"announcement_grades/x@example.com", "users/x@example.com", "conversations/x@example.com"} {
		err := f.accounts.Register(ctx, domain.Registration{
			Email: email, Password: "hunter22", FirstName: "Eve", LastName: "Null",
		})
		require.ErrorIs(t, err, domain.ErrInvalidInput, email)
		require.Equal(t, "pathkey", domain.FieldErrors(err)["email"], email)
	}

	snap, err := f.announcements.ListGrades(ctx, dean)
	require.NoError(t, err)
	require.Empty(t, snap.Failures)
	require.Len(t, snap.Items, 2)
}
