package auth

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/pkg/apperr"
	sessionpkg "github.com/mx-space/diary/internal/pkg/session"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt input limit
	defaultFailDelay  = 3 * time.Second
)

var (
	errWrongPassword  = apperr.Unauthorized("wrong password")
	errLoginDisabled  = apperr.Unauthorized("admin password is not configured")
	errSessionExpired = apperr.Unauthorized("session expired")
)

// Passwords stores the admin password hash.
type Passwords interface {
	AdminPasswordHash(ctx context.Context) (string, error)
	SetAdminPasswordHash(ctx context.Context, hash string) error
}

// Sessions issues and revokes admin login sessions.
type Sessions interface {
	Issue(ctx context.Context, ip, ua string) (string, *sessionpkg.Session, error)
	Lookup(ctx context.Context, id string) (*sessionpkg.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllExcept(ctx context.Context, keepID string) error
}

type Service struct {
	passwords Passwords
	sessions  Sessions
	logger    *zap.Logger
	// failDelay slows down wrong guesses.
	failDelay time.Duration
}

func NewService(passwords Passwords, sessions Sessions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		passwords: passwords,
		sessions:  sessions,
		logger:    logger.Named("AuthService"),
		failDelay: defaultFailDelay,
	}
}

// Login checks the admin password and opens a session.
func (s *Service) Login(ctx context.Context, password, ip, ua string) (string, *sessionpkg.Session, error) {
	if err := s.verify(ctx, password); err != nil {
		s.logger.Warn("admin login failed", zap.String("ip", ip))
		return "", nil, err
	}
	token, sess, err := s.sessions.Issue(ctx, ip, ua)
	if err != nil {
		s.logger.Error("failed to issue session", zap.Error(err))
		return "", nil, apperr.Store("create session", err)
	}
	s.logger.Info("admin logged in", zap.String("sessionId", sess.ID), zap.String("ip", ip))
	return token, sess, nil
}

func (s *Service) verify(ctx context.Context, password string) error {
	hash, err := s.passwords.AdminPasswordHash(ctx)
	if err != nil {
		return err
	}
	if hash == "" {
		return errLoginDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Error("stored admin password hash is invalid", zap.Error(err))
		}
		s.sleep(ctx)
		return errWrongPassword
	}
	return nil
}

func (s *Service) sleep(ctx context.Context) {
	if s.failDelay <= 0 {
		return
	}
	t := time.NewTimer(s.failDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		s.logger.Error("failed to revoke session", zap.String("sessionId", sessionID), zap.Error(err))
		return apperr.Store("revoke session", err)
	}
	return nil
}

// Check returns the live session behind sessionID.
func (s *Service) Check(ctx context.Context, sessionID string) (*sessionpkg.Session, error) {
	sess, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionpkg.ErrNotFound) {
			return nil, errSessionExpired
		}
		return nil, apperr.Store("load session", err)
	}
	return sess, nil
}

// ChangePassword replaces the admin password and signs out every other session.
func (s *Service) ChangePassword(ctx context.Context, sessionID, current, next string) error {
	if n := utf8.RuneCountInString(next); n < MinPasswordLength || len(next) > MaxPasswordLength {
		return apperr.Validation("new password must be %d to %d characters", MinPasswordLength, MaxPasswordLength)
	}
	if err := s.verify(ctx, current); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Store("hash password", err)
	}
	if err := s.passwords.SetAdminPasswordHash(ctx, string(hash)); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllExcept(ctx, sessionID); err != nil {
		s.logger.Error("failed to revoke other sessions", zap.Error(err))
		return apperr.Store("revoke sessions", err)
	}
	s.logger.Info("admin password changed", zap.String("sessionId", sessionID))
	return nil
}
