package auth

import (
	"errors"
	"testing"
)

func TestGenerateAndParse(t *testing.T) {
	s := NewService("secret", 5)
	token, err := s.GenerateToken("Ann@School.edu", "AB12CD34")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	email, sid, err := s.ParseAuthContext(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if email != "ann@school.edu" || sid != "AB12CD34" {
		t.Fatalf("unexpected claims %s %s", email, sid)
	}
}

func TestParseRejectsOtherSecret(t *testing.T) {
	token, err := NewService("one", 5).GenerateToken("a@b.com", "X")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewService("two", 5).ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateRequiresSession(t *testing.T) {
	if _, err := NewService("s", 5).GenerateToken("a@b.com", ""); err == nil {
		t.Fatalf("expected error without session id")
	}
}
