package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/email"
	"github.com/menushield/menushield/internal/metrics"
)

type ctxKey string

const userCtxKey ctxKey = "auth_user"

// UserFromContext returns the authenticated user stored by RequireSession.
func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(userCtxKey).(*User); ok {
		return u
	}
	return nil
}

// ContextWithUser stores a user on the context the way RequireSession does.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// RequireSession rejects requests without a valid session and stores the
// user on the request context for downstream handlers.
func RequireSession(svc *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := svc.CurrentUser(r)
		if err != nil {
			log.Error().Err(err).Msg("Session lookup failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// HandleRequestMagicLink issues a sign-in link for the posted email address.
// The response never reveals whether the address is known.
func HandleRequestMagicLink(svc *Service, sender email.Sender, from, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		addr := strings.TrimSpace(req.Email)
		if _, err := mail.ParseAddress(addr); err != nil {
			writeError(w, http.StatusBadRequest, "a valid email address is required")
			return
		}

		token, err := svc.GenerateToken(addr)
		if err != nil {
			log.Error().Err(err).Msg("Magic link token generation failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		verifyURL := BuildVerifyURL(baseURL, token)
		if verifyURL == "" {
			log.Error().Str("base_url", baseURL).Msg("Magic link URL build failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		htmlBody, textBody, err := email.RenderMagicLinkEmail(email.MagicLinkData{MagicLinkURL: verifyURL})
		if err != nil {
			log.Error().Err(err).Msg("Magic link email render failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := sender.Send(r.Context(), email.Message{
			From:    from,
			To:      addr,
			Subject: "Sign in to MenuShield",
			HTML:    htmlBody,
			Text:    textBody,
		}); err != nil {
			log.Error().Err(err).Msg("Magic link email send failed")
			writeError(w, http.StatusBadGateway, "email delivery failed")
			return
		}
		metrics.MagicLinksIssuedTotal.Inc()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"sent": true})
	}
}

// HandleVerify consumes a magic link token, starts a session, and redirects
// to the dashboard.
func HandleVerify(svc *Service, secureCookies bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimSpace(r.URL.Query().Get("token"))

		user, sessionToken, err := svc.VerifyToken(token)
		if err != nil {
			status := http.StatusBadRequest
			msg := "sign-in link is invalid"
			switch {
			case errors.Is(err, ErrTokenExpired):
				msg = "sign-in link has expired"
			case errors.Is(err, ErrTokenUsed):
				msg = "sign-in link was already used"
			case errors.Is(err, ErrTokenInvalid):
			default:
				log.Error().Err(err).Msg("Magic link verification failed")
				status = http.StatusInternalServerError
				msg = "internal error"
			}
			writeError(w, status, msg)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sessionToken,
			Path:     "/",
			MaxAge:   int(sessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		log.Info().Str("user_id", user.ID).Msg("User signed in via magic link")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}

// HandleMe returns the current user.
func HandleMe(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := svc.CurrentUser(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}
}

// HandleLogout clears the session cookie and deletes the session record.
func HandleLogout(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := svc.Logout(r); err != nil {
			log.Warn().Err(err).Msg("Session delete failed during logout")
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
