package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menushield/menushield/internal/api"
	"github.com/menushield/menushield/internal/auditlog"
	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/billing"
	"github.com/menushield/menushield/internal/blob"
	"github.com/menushield/menushield/internal/email"
	"github.com/menushield/menushield/internal/registry"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config      *Config
	Registry    *registry.Registry
	Audit       *auditlog.Log
	Auth        *auth.Service
	EmailSender email.Sender
	Blob        *blob.FSStore
	Version     string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	sessionAuth := func(next http.Handler) http.Handler {
		return auth.RequireSession(deps.Auth, next)
	}

	// Health / readiness are unauthenticated probes.
	mux.HandleFunc("/healthz", HandleHealthz)
	mux.HandleFunc("/readyz", HandleReadyz(deps.Registry))

	metricsHandler := promhttp.Handler()
	if deps.Config.PublicMetrics {
		mux.Handle("/metrics", metricsHandler)
	} else {
		mux.Handle("/metrics", sessionAuth(metricsHandler))
	}

	// Stripe webhook (signature-authenticated)
	reconciler := billing.NewReconciler(deps.Registry, deps.Config.PricePlans, deps.Audit)
	webhookHandler := billing.NewWebhookHandler(deps.Config.StripeWebhookSecret, reconciler)
	webhookLimiter := NewRateLimiter(120, time.Minute)
	mux.Handle("/api/stripe/webhook", webhookLimiter.Middleware(webhookHandler))

	// Checkout and billing portal (session-authenticated)
	checkout := billing.NewCheckoutHandlers(deps.Config.StripeAPIKey, deps.Config.BaseURL, deps.Config.PricePlans, deps.Registry)
	mux.Handle("/api/billing/checkout", sessionAuth(http.HandlerFunc(checkout.HandleCreateCheckout)))
	mux.Handle("/api/billing/portal", sessionAuth(http.HandlerFunc(checkout.HandleCreatePortal)))

	// Magic-link auth (public, token-authenticated; rate-limited against
	// email bombing)
	authLimiter := NewRateLimiter(10, time.Minute)
	mux.Handle("/api/auth/magic-link", authLimiter.Middleware(
		auth.HandleRequestMagicLink(deps.Auth, deps.EmailSender, deps.Config.EmailFrom, deps.Config.BaseURL)))
	mux.HandleFunc("/auth/magic-link/verify", auth.HandleVerify(deps.Auth, deps.Config.SecureCookies))
	mux.HandleFunc("/api/auth/me", auth.HandleMe(deps.Auth))
	mux.HandleFunc("/api/auth/logout", auth.HandleLogout(deps.Auth))

	// Dashboard CRUD (session-authenticated, ownership-checked)
	restaurantsCollection := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.HandleListRestaurants(deps.Registry)(w, r)
		case http.MethodPost:
			api.HandleCreateRestaurant(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	restaurant := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.HandleGetRestaurant(deps.Registry)(w, r)
		case http.MethodPatch, http.MethodPut:
			api.HandleUpdateRestaurant(deps.Registry)(w, r)
		case http.MethodDelete:
			api.HandleDeleteRestaurant(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	menusCollection := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.HandleListMenus(deps.Registry)(w, r)
		case http.MethodPost:
			api.HandleCreateMenu(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	dishesCollection := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.HandleListDishes(deps.Registry)(w, r)
		case http.MethodPost:
			api.HandleCreateDish(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	dish := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPatch:
			api.HandleUpdateDish(deps.Registry)(w, r)
		case http.MethodDelete:
			api.HandleDeleteDish(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	allergensCollection := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.HandleListAllergens(deps.Registry)(w, r)
		case http.MethodPut, http.MethodPost:
			api.HandleUpsertAllergen(deps.Registry)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.Handle("/api/restaurants", sessionAuth(restaurantsCollection))
	mux.Handle("/api/restaurants/{restaurant_id}", sessionAuth(restaurant))
	mux.Handle("/api/restaurants/{restaurant_id}/menus", sessionAuth(menusCollection))
	mux.Handle("/api/restaurants/{restaurant_id}/allergens", sessionAuth(allergensCollection))
	mux.Handle("/api/restaurants/{restaurant_id}/allergens/{code}", sessionAuth(api.HandleDeleteAllergen(deps.Registry)))
	mux.Handle("/api/menus/{menu_id}", sessionAuth(api.HandleDeleteMenu(deps.Registry)))
	mux.Handle("/api/menus/{menu_id}/dishes", sessionAuth(dishesCollection))
	mux.Handle("/api/dishes/{dish_id}", sessionAuth(dish))
	mux.Handle("/api/dishes/{dish_id}/image", sessionAuth(api.HandleUploadDishImage(deps.Registry, deps.Blob)))

	// Public menu (unauthenticated)
	mux.HandleFunc("/api/public-menu/{slug}", api.HandlePublicMenu(deps.Registry))
	mux.HandleFunc("/api/public-menu/{slug}/theme", api.HandlePublicTheme(deps.Registry))

	// Uploaded dish images
	if deps.Blob != nil {
		mux.Handle("/uploads/", deps.Blob.Handler())
	}
}
