package service

import (
	"context"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"schoolboard/server/school/domain"
)

func TestAttachmentKeys(t *testing.T) {
	key := attachmentKey("ann-school-edu", "Field Trip.PNG")
	require.True(t, strings.HasPrefix(key, "attachments/ann-school-edu/"), key)
	require.True(t, strings.HasSuffix(key, ".png"), key)

	thumb := thumbnailKey(key)
	require.True(t, strings.HasPrefix(thumb, "thumbnails/ann-school-edu/"), thumb)
	require.True(t, strings.HasSuffix(thumb, ".jpg"), thumb)
	require.NotContains(t, thumb, ".png")
}

func TestAttachmentKeyDropsOddExtensions(t *testing.T) {
	key := attachmentKey("ann-school-edu", "photo.p?g")
	require.NotContains(t, key, "?")
	require.Equal(t, "", path.Ext(key))
}

func TestAttachmentLinksAreStable(t *testing.T) {
	s := NewAttachmentService(nil, "schoolboard", "https://school.example/", nil)
	key := attachmentKey("ann-school-edu", "trip.jpg")
	require.Equal(t, "https://school.example/api/v1/attachments/"+key, s.stableURL(key))

	require.True(t, validObjectKey(key))
	require.True(t, validObjectKey(thumbnailKey(key)))
	for _, bad := range []string{"", "credentials/ann-school-edu", "attachments/../credentials/x", "attachments//x.png", "attachments/"} {
		require.False(t, validObjectKey(bad), bad)
	}
	_, err := s.Link(context.Background(), "credentials/ann-school-edu")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIsImage(t *testing.T) {
	require.True(t, isImage("image/jpeg"))
	require.True(t, isImage(" Image/PNG "))
	require.False(t, isImage("video/mp4"))
	require.False(t, isImage(""))
}

func TestRedisMessageGuard(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	guard := NewRedisMessageGuard(client)
	guard.Release(ctx, "conversation_g", "m1")

	ok, err := guard.Claim(ctx, "conversation_g", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = guard.Claim(ctx, "conversation_g", "m1")
	require.NoError(t, err)
	require.False(t, ok)

	guard.Release(ctx, "conversation_g", "m1")
	ok, err = guard.Claim(ctx, "conversation_g", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	guard.Release(ctx, "conversation_g", "m1")
}
