package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRenderText(t *testing.T) {
	l := &logger{}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := l.render(ts, warnLevel, "pkg.Fn", "event=x status=failed")
	if !strings.HasSuffix(got, ":WARN:pkg.Fn:event=x status=failed") {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	l := &logger{json: true}
	got := l.render(time.Now(), infoLevel, "pkg.Fn", "hello")
	var payload map[string]string
	if err := json.Unmarshal([]byte(got), &payload); err != nil {
		t.Fatalf("expected json line: %v", err)
	}
	if payload["level"] != "INFO" || payload["message"] != "hello" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestMinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := &logger{console: &buf, min: warnLevel}
	l.logf(infoLevel, "skipped")
	l.logf(errorLevel, "kept")
	if strings.Contains(buf.String(), "skipped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRotatingFileRotates(t *testing.T) {
	dir := t.TempDir()
	r := &rotatingFile{path: filepath.Join(dir, "app.log"), maxSize: 10}
	if err := r.write("0123456789\n"); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := r.write("second\n"); err != nil {
		t.Fatalf("second write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected rotated file plus current, got %d entries", len(entries))
	}
	current, _ := os.ReadFile(r.path)
	if string(current) != "second\n" {
		t.Fatalf("unexpected current contents %q", current)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("error") != errorLevel {
		t.Fatalf("expected error level")
	}
	if parseLevel("bogus") != debugLevel {
		t.Fatalf("expected debug fallback")
	}
}
