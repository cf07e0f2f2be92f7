package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// SessionCookieName carries the dashboard session token.
	SessionCookieName = "ms_session"

	magicLinkTTL = 15 * time.Minute
	sessionTTL   = 30 * 24 * time.Hour

	hmacKeyFile = "auth_hmac.key"
)

// Service issues magic sign-in links and manages dashboard sessions. Raw
// tokens never touch disk; only their HMAC-SHA256 digests are stored.
type Service struct {
	store   *Store
	hmacKey []byte
	now     func() time.Time
}

// NewService opens the auth store in dir and loads (or creates) the HMAC key.
func NewService(dir string) (*Service, error) {
	store, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	key, err := loadOrCreateHMACKey(filepath.Join(dir, hmacKeyFile))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Service{
		store:   store,
		hmacKey: key,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// GenerateToken issues a single-use sign-in token for an email address.
func (s *Service) GenerateToken(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	raw, err := randomToken()
	if err != nil {
		return "", err
	}
	rec := tokenRecord{
		Email:     email,
		ExpiresAt: s.now().Add(magicLinkTTL),
	}
	if err := s.store.putToken(s.hashToken(raw), rec); err != nil {
		return "", err
	}
	return raw, nil
}

// VerifyToken consumes a sign-in token and returns the (possibly newly
// created) user plus a fresh session token.
func (s *Service) VerifyToken(rawToken string) (*User, string, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, "", ErrTokenInvalid
	}
	now := s.now()

	rec, err := s.store.consumeToken(s.hashToken(rawToken), now)
	if err != nil {
		return nil, "", err
	}
	user, err := s.store.ensureUser(rec.Email, now)
	if err != nil {
		return nil, "", err
	}

	sessionToken, err := randomToken()
	if err != nil {
		return nil, "", err
	}
	err = s.store.putSession(s.hashToken(sessionToken), sessionRecord{
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(sessionTTL),
	})
	if err != nil {
		return nil, "", err
	}
	return user, sessionToken, nil
}

// CurrentUser resolves the session cookie on a request. Returns nil without
// error when the request carries no valid session.
func (s *Service) CurrentUser(r *http.Request) (*User, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, nil
	}
	rec, err := s.store.getSession(s.hashToken(cookie.Value), s.now())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return s.store.getUser(rec.UserID)
}

// Logout removes the session referenced by the request cookie, if any.
func (s *Service) Logout(r *http.Request) error {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil
	}
	return s.store.deleteSession(s.hashToken(cookie.Value))
}

// BuildVerifyURL produces the absolute link embedded in sign-in emails.
func BuildVerifyURL(baseURL, token string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/auth/magic-link/verify"
	parsed.RawQuery = url.Values{"token": {token}}.Encode()
	return parsed.String()
}

func (s *Service) hashToken(raw string) []byte {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(raw))
	return mac.Sum(nil)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func loadOrCreateHMACKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil && len(key) >= 32 {
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read hmac key: %w", err)
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate hmac key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write hmac key: %w", err)
	}
	return key, nil
}
