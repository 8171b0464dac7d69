// Package auth handles signup, login and server-side sessions.
//
// A request is resolved in two steps: the Authorization bearer token first,
// then the fc_session cookie. A miss or failure in the first step falls
// through to the second; only when both fail is the request anonymous.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// CookieName is the session cookie used by browsers.
const CookieName = "fc_session"

// Resolution sources reported by Resolve.
const (
	SourceBearer = "bearer"
	SourceCookie = "cookie"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
)

// dummyHash keeps Login timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fincontrol-dummy-password"), bcrypt.MinCost)

type Service struct {
	repo   *storage.SQLiteRepository
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *applog.Logger
}

func NewService(repo *storage.SQLiteRepository, ttl time.Duration, logger *applog.Logger) *Service {
	return &Service{
		repo:   repo,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentAuth),
	}
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Signup creates the user and opens a first session.
func (s *Service) Signup(ctx context.Context, email, name, password string) (core.User, storage.Session, error) {
	email = core.NormalizeEmail(email)
	if err := core.ValidateCredentials(email, password); err != nil {
		return core.User{}, storage.Session{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, storage.Session{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return core.User{}, storage.Session{}, fmt.Errorf("create user: %w", err)
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return core.User{}, storage.Session{}, err
	}
	s.logger.InfoContext(ctx, "User signed up", applog.FieldUserID, user.ID)
	return user, session, nil
}

// Login checks the password and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string) (core.User, storage.Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return core.User{}, storage.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, storage.Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Login failed", applog.FieldUserID, user.ID)
		return core.User{}, storage.Session{}, ErrInvalidCredentials
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return core.User{}, storage.Session{}, err
	}
	return user, session, nil
}

func (s *Service) openSession(ctx context.Context, userID string) (storage.Session, error) {
	token, err := NewToken()
	if err != nil {
		return storage.Session{}, err
	}
	expires := s.now().Add(s.ttl).UTC()
	if err := s.repo.CreateSession(ctx, token, userID, expires); err != nil {
		return storage.Session{}, fmt.Errorf("create session: %w", err)
	}
	return storage.Session{Token: token, UserID: userID, ExpiresAt: expires}, nil
}

// Logout deletes the session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes expired sessions and returns how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx)
}

// Resolve identifies the user behind r and reports which step succeeded.
func (s *Service) Resolve(ctx context.Context, r *http.Request) (core.User, string, error) {
	if token := BearerToken(r); token != "" {
		user, err := s.userForToken(ctx, token)
		if err == nil {
			return user, SourceBearer, nil
		}
		s.logger.DebugContext(ctx, "Bearer session rejected, trying cookie", applog.FieldError, err)
	}

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		user, err := s.userForToken(ctx, c.Value)
		if err == nil {
			return user, SourceCookie, nil
		}
		s.logger.DebugContext(ctx, "Cookie session rejected", applog.FieldError, err)
	}

	return core.User{}, "", ErrUnauthenticated
}

func (s *Service) userForToken(ctx context.Context, token string) (core.User, error) {
	session, err := s.repo.GetSession(ctx, token)
	if err != nil {
		return core.User{}, err
	}
	return s.repo.GetUser(ctx, session.UserID)
}

// RequestToken returns the token the request would authenticate with.
func RequestToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SetSessionCookie writes the session cookie. secure should be true behind TLS.
func SetSessionCookie(w http.ResponseWriter, session storage.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
