package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"schoolboard/server/common/auth"
	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type credential struct {
	PasswordHash string `json:"password_hash"`
}

type LoginResult struct {
	AccessToken string
	Email       string
	IsDean      bool
	Session     *domain.Session
}

type AccountService struct {
	store     docstore.Store
	sessions  *SessionService
	directory *DirectoryService
	tokens    *auth.Service
}

func NewAccountService(store docstore.Store, sessions *SessionService, directory *DirectoryService, tokens *auth.Service) *AccountService {
	return &AccountService{store: store, sessions: sessions, directory: directory, tokens: tokens}
}

func (s *AccountService) UserExists(ctx context.Context, email string) (bool, error) {
	_, err := s.store.Get(ctx, userPath(domain.SafeEmail(email)))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Register creates the user record, its credential and its directory entry.
func (s *AccountService) Register(ctx context.Context, reg domain.Registration) error {
	if err := domain.Validate(reg); err != nil {
		return err
	}
	safe := domain.SafeEmail(reg.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		FirstName:   reg.FirstName,
		LastName:    reg.LastName,
		DisplayName: reg.DisplayName,
		IsDean:      reg.IsDean,
		Grade:       reg.Grade,
	}
	err = s.store.Update(ctx, userPath(safe), func(current any) (any, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: user %s", domain.ErrAlreadyExists, safe)
		}
		return user, nil
	})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, credentialPath(safe), credential{PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	entry := domain.DirectoryEntry{
		FirstName:   reg.FirstName,
		LastName:    reg.LastName,
		DisplayName: reg.DisplayName,
		Email:       safe,
	}
	if err := s.directory.ReplaceEntry(ctx, entry); err != nil {
		return fmt.Errorf("add directory entry: %w", err)
	}
	commonlog.Infof("event=user_register status=ok email=%s is_dean=%t", safe, reg.IsDean)
	return nil
}

// Login checks the password, provides a fresh session and issues an access
// token bound to it.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	safe := domain.SafeEmail(email)
	raw, err := s.store.Get(ctx, credentialPath(safe))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	var cred credential
	if err := docstore.Decode(raw, &cred); err != nil || cred.PasswordHash == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		commonlog.Warnf("event=user_login status=failed email=%s reason=password", safe)
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := loadUser(ctx, s.store, safe)
	if err != nil {
		return LoginResult{}, err
	}

	sess := domain.NewSession(email)
	if err := s.sessions.ProvideSession(ctx, sess); err != nil {
		return LoginResult{}, err
	}
	token, _ := sess.Token()
	access, err := s.tokens.GenerateToken(email, token)
	if err != nil {
		return LoginResult{}, err
	}
	commonlog.Infof("event=user_login status=ok email=%s", safe)
	return LoginResult{AccessToken: access, Email: safe, IsDean: user.IsDean, Session: sess}, nil
}

func (s *AccountService) Logout(ctx context.Context, sess *domain.Session) {
	s.sessions.EndSession(ctx, sess)
}
