package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

const (
	directoryPath = "users"
	gradesPath    = "announcement_grades"
)

func userPath(safeEmail string) string        { return safeEmail }
func sessionPath(safeEmail string) string     { return safeEmail + "/session_id" }
func deanPath(safeEmail string) string        { return safeEmail + "/is_dean" }
func displayNamePath(safeEmail string) string { return safeEmail + "/display_name" }
func indexPath(safeEmail string) string       { return safeEmail + "/conversations" }
func conversationPath(id string) string       { return "conversations/" + id }
func messagesPath(id string) string           { return "conversations/" + id + "/messages" }
func credentialPath(safeEmail string) string  { return "credentials/" + safeEmail }

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomToken draws n characters from tokenAlphabet, rejecting bytes that
// would bias the modulo.
func randomToken(n int) (string, error) {
	limit := byte(256 - 256%len(tokenAlphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func loadUser(ctx context.Context, store docstore.Store, safeEmail string) (domain.User, error) {
	raw, err := store.Get(ctx, userPath(safeEmail))
	if err != nil {
		return domain.User{}, fetchError("user "+safeEmail, err)
	}
	var user domain.User
	if err := docstore.Decode(raw, &user); err != nil {
		return domain.User{}, fmt.Errorf("%w: user %s: %v", domain.ErrFetchFailed, safeEmail, err)
	}
	return user, nil
}

// fetchError folds store misses into ErrFetchFailed and keeps other errors.
func fetchError(what string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrFetchFailed, what)
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), float64(int(n)) == n
	case int:
		return n, true
	default:
		return 0, false
	}
}

func asStrings(v any) []string {
	list := asList(v)
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func safeEmails(emails []string) []string {
	out := make([]string, len(emails))
	for i, e := range emails {
		out[i] = domain.SafeEmail(e)
	}
	return out
}

func dedupeAndTrim(items []string) []string {
	result := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

// sameSet reports whether a and b hold the same members, ignoring order.
func sameSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, item := range a {
		left[item] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, item := range b {
		if _, ok := left[item]; !ok {
			return false
		}
		right[item] = struct{}{}
	}
	return len(left) == len(right)
}

// without returns items minus the element at skip, with head prepended.
func without(items []string, skip int, head string) []string {
	out := make([]string, 0, len(items))
	out = append(out, head)
	for i, item := range items {
		if i != skip {
			out = append(out, item)
		}
	}
	return out
}
