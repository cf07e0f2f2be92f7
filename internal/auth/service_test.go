package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestMagicLinkRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken("Owner@Example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	user, sessionToken, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if user.Email != "owner@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if sessionToken == "" {
		t.Fatal("no session token issued")
	}

	// Session cookie resolves to the same user.
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionToken})
	got, err := svc.CurrentUser(r)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("CurrentUser = %+v, want %s", got, user.ID)
	}
}

func TestMagicLinkSingleUse(t *testing.T) {
	svc := newTestService(t)
	token, err := svc.GenerateToken("owner@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, _, err := svc.VerifyToken(token); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("second verify = %v, want ErrTokenUsed", err)
	}
}

func TestMagicLinkExpiry(t *testing.T) {
	svc := newTestService(t)
	token, err := svc.GenerateToken("owner@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(magicLinkTTL + time.Minute) }
	if _, _, err := svc.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("verify after expiry = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyTokenGarbage(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.VerifyToken("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc := newTestService(t)
	token, _ := svc.GenerateToken("owner@example.com")
	_, sessionToken, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionToken})
	if err := svc.Logout(r); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	got, err := svc.CurrentUser(r)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if got != nil {
		t.Fatalf("session survived logout: %+v", got)
	}
}

func TestRequireSessionMiddleware(t *testing.T) {
	svc := newTestService(t)

	var sawUser *User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireSession(svc, next)

	// No cookie: 401 with a JSON error envelope.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/restaurants", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("error envelope missing: %q", rec.Body.String())
	}

	// Valid session passes through with the user on the context.
	token, _ := svc.GenerateToken("owner@example.com")
	user, sessionToken, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionToken})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request status = %d", rec.Code)
	}
	if sawUser == nil || sawUser.ID != user.ID {
		t.Fatalf("context user = %+v", sawUser)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	// A second Close (deferred by a caller that already shut down) must not
	// panic on the cleanup channel.
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBuildVerifyURL(t *testing.T) {
	got := BuildVerifyURL("https://menushield.example.com", "tok123")
	want := "https://menushield.example.com/auth/magic-link/verify?token=tok123"
	if got != want {
		t.Fatalf("BuildVerifyURL = %q, want %q", got, want)
	}
	if BuildVerifyURL("", "tok") != "" {
		t.Fatal("empty base URL must yield empty link")
	}
	if BuildVerifyURL("not a url", "tok") != "" {
		t.Fatal("invalid base URL must yield empty link")
	}
}
