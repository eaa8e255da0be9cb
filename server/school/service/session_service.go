package service

import (
	"context"
	"errors"
	"fmt"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

const sessionTokenLength = 8

type SessionService struct {
	store docstore.Store
}

func NewSessionService(store docstore.Store) *SessionService {
	return &SessionService{store: store}
}

// ProvideSession issues a token for sess and records it on the user. A
// session that was already provided is left alone. The session stays locked
// until the stored token and the local one agree.
func (s *SessionService) ProvideSession(ctx context.Context, sess *domain.Session) error {
	if sess == nil || sess.Email() == "" {
		return fmt.Errorf("%w: session has no email", domain.ErrInvalidInput)
	}
	provided, err := sess.ProvideWith(func() (string, error) {
		token, err := randomToken(sessionTokenLength)
		if err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}
		if err := s.store.Set(ctx, sessionPath(sess.SafeEmail()), token); err != nil {
			commonlog.Errorf("event=session_provide status=failed email=%s error=%v", sess.SafeEmail(), err)
			return "", fmt.Errorf("store session token: %w", err)
		}
		return token, nil
	})
	if err != nil {
		return err
	}
	if provided {
		commonlog.Infof("event=session_provide status=ok email=%s", sess.SafeEmail())
	}
	return nil
}

// VerifySession reports whether the local token matches the stored one. Any
// missing value or lookup failure counts as a mismatch.
func (s *SessionService) VerifySession(ctx context.Context, sess *domain.Session) bool {
	if sess == nil || sess.Email() == "" {
		return false
	}
	local, ok := sess.Token()
	if !ok {
		return false
	}
	raw, err := s.store.Get(ctx, sessionPath(sess.SafeEmail()))
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			commonlog.Warnf("event=session_verify status=failed email=%s error=%v", sess.SafeEmail(), err)
		}
		return false
	}
	remote, ok := raw.(string)
	return ok && remote == local
}

func (s *SessionService) VerifyDean(ctx context.Context, sess *domain.Session) bool {
	if !s.VerifySession(ctx, sess) {
		return false
	}
	raw, err := s.store.Get(ctx, deanPath(sess.SafeEmail()))
	if err != nil {
		return false
	}
	isDean, ok := raw.(bool)
	return ok && isDean
}

// EndSession drops the local token and clears the stored one. The stored
// clear is best effort.
func (s *SessionService) EndSession(ctx context.Context, sess *domain.Session) {
	if sess == nil {
		return
	}
	sess.End()
	if sess.Email() == "" {
		return
	}
	if err := s.store.Set(ctx, sessionPath(sess.SafeEmail()), nil); err != nil {
		commonlog.Warnf("event=session_end status=failed email=%s error=%v", sess.SafeEmail(), err)
		return
	}
	commonlog.Infof("event=session_end status=ok email=%s", sess.SafeEmail())
}

func (s *SessionService) requireSession(ctx context.Context, sess *domain.Session) error {
	if !s.VerifySession(ctx, sess) {
		return fmt.Errorf("%w: session", domain.ErrVerificationFailed)
	}
	return nil
}

func (s *SessionService) requireDean(ctx context.Context, sess *domain.Session) error {
	if !s.VerifyDean(ctx, sess) {
		return fmt.Errorf("%w: dean", domain.ErrVerificationFailed)
	}
	return nil
}
