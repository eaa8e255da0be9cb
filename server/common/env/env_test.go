package env

import (
	"testing"
	"time"
)

func TestIntRejectsNonPositive(t *testing.T) {
	t.Setenv("SCHOOL_TEST_INT", "-3")
	if got := Int("SCHOOL_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	t.Setenv("SCHOOL_TEST_INT", "12")
	if got := Int("SCHOOL_TEST_INT", 7); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("SCHOOL_TEST_TTL", "45")
	if got := Seconds("SCHOOL_TEST_TTL", time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s, got %v", got)
	}
	if got := Seconds("SCHOOL_TEST_TTL_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestOneOf(t *testing.T) {
	t.Setenv("SCHOOL_TEST_BACKEND", "Redis")
	if got := OneOf("SCHOOL_TEST_BACKEND", "memory", "memory", "redis"); got != "redis" {
		t.Fatalf("expected redis, got %s", got)
	}
	t.Setenv("SCHOOL_TEST_BACKEND", "mongo")
	if got := OneOf("SCHOOL_TEST_BACKEND", "memory", "memory", "redis"); got != "memory" {
		t.Fatalf("expected fallback memory, got %s", got)
	}
}

func TestCSVDedupes(t *testing.T) {
	t.Setenv("SCHOOL_TEST_CSV", " a, b ,a,,c")
	got := CSV("SCHOOL_TEST_CSV", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected csv %v", got)
	}
}
