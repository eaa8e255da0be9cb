package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "")
	t.Setenv("PORT", "")
	t.Setenv("DIRECTORY_CACHE_TTL_SECONDS", "")
	t.Setenv("SCHOOL_MESSAGE_GUARD", "")
	cfg := LoadConfig()
	require.Equal(t, BackendMemory, cfg.DocstoreBackend)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 60*time.Second, cfg.DirectoryCacheTTL)
	require.False(t, cfg.NeedsRedis())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "Redis")
	t.Setenv("DIRECTORY_CACHE_TTL_SECONDS", "5")
	t.Setenv("FANOUT_CONCURRENCY", "2")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg := LoadConfig()
	require.Equal(t, BackendRedis, cfg.DocstoreBackend)
	require.True(t, cfg.NeedsRedis())
	require.Equal(t, 5*time.Second, cfg.DirectoryCacheTTL)
	require.Equal(t, 2, cfg.FanoutConcurrency)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigUnknownBackendFallsBack(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "cassandra")
	require.Equal(t, BackendMemory, LoadConfig().DocstoreBackend)
}

func TestNewServerWithMemoryBackend(t *testing.T) {
	cfg := LoadConfig()
	cfg.DocstoreBackend = BackendMemory
	cfg.UseMQ = false
	cfg.AttachmentsEnabled = false
	cfg.MessageGuard = false

	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(s.closeBackends)

	w := httptest.NewRecorder()
	s.HTTPServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
