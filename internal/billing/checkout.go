package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/registry"
)

const checkoutRequestBodyLimit = 16 * 1024

// CheckoutHandlers creates Stripe checkout and billing-portal sessions for
// authenticated restaurant owners.
type CheckoutHandlers struct {
	apiKey   string
	baseURL  string
	prices   PricePlans
	registry *registry.Registry

	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	createPortalSession   func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error)
}

// NewCheckoutHandlers creates checkout handlers backed by the live Stripe API.
func NewCheckoutHandlers(apiKey, baseURL string, prices PricePlans, reg *registry.Registry) *CheckoutHandlers {
	return &CheckoutHandlers{
		apiKey:                apiKey,
		baseURL:               baseURL,
		prices:                prices,
		registry:              reg,
		createCheckoutSession: stripesession.New,
		createPortalSession:   portalsession.New,
	}
}

// HandleCreateCheckout starts a subscription checkout for one of the caller's
// restaurants. The restaurant id rides along in session metadata so the
// webhook can link the resulting customer back to the row.
func (h *CheckoutHandlers) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RestaurantID string `json:"restaurant_id"`
		Plan         string `json:"plan"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, checkoutRequestBodyLimit)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "invalid request body"})
		return
	}
	plan, ok := ParsePlan(req.Plan)
	if !ok || plan == PlanStarter {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "plan must be pro or enterprise"})
		return
	}

	rest, err := h.ownedRestaurant(r, req.RestaurantID)
	if err != nil {
		writeOwnershipError(w, err)
		return
	}

	checkoutURL, err := h.createCheckout(rest, plan)
	if err != nil {
		log.Warn().Err(err).Str("restaurant_id", rest.ID).Msg("Checkout session creation failed")
		writeJSON(w, http.StatusBadGateway, webhookErrorResponse{Error: "unable to create checkout session"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"checkout_url": checkoutURL})
}

// HandleCreatePortal opens a Stripe billing portal session for a restaurant
// that already has a customer record.
func (h *CheckoutHandlers) HandleCreatePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RestaurantID string `json:"restaurant_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, checkoutRequestBodyLimit)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "invalid request body"})
		return
	}

	rest, err := h.ownedRestaurant(r, req.RestaurantID)
	if err != nil {
		writeOwnershipError(w, err)
		return
	}
	if strings.TrimSpace(rest.StripeCustomerID) == "" {
		writeJSON(w, http.StatusConflict, webhookErrorResponse{Error: "restaurant has no billing account yet"})
		return
	}

	if strings.TrimSpace(h.apiKey) == "" {
		writeJSON(w, http.StatusServiceUnavailable, webhookErrorResponse{Error: "billing not configured"})
		return
	}
	stripelib.Key = strings.TrimSpace(h.apiKey)
	session, err := h.createPortalSession(&stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(rest.StripeCustomerID),
		ReturnURL: stripelib.String(buildAppURL(h.baseURL, "/dashboard", nil)),
	})
	if err != nil || session == nil || strings.TrimSpace(session.URL) == "" {
		log.Warn().Err(err).Str("restaurant_id", rest.ID).Msg("Billing portal session creation failed")
		writeJSON(w, http.StatusBadGateway, webhookErrorResponse{Error: "unable to open billing portal"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"portal_url": session.URL})
}

var (
	errNotOwned        = errors.New("restaurant not found")
	errUnauthenticated = errors.New("authentication required")
)

func (h *CheckoutHandlers) ownedRestaurant(r *http.Request, restaurantID string) (*registry.Restaurant, error) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return nil, errUnauthenticated
	}
	rest, err := h.registry.GetRestaurant(strings.TrimSpace(restaurantID))
	if err != nil {
		return nil, fmt.Errorf("lookup restaurant: %w", err)
	}
	if rest == nil || rest.OwnerID != user.ID {
		return nil, errNotOwned
	}
	return rest, nil
}

func writeOwnershipError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotOwned):
		writeJSON(w, http.StatusNotFound, webhookErrorResponse{Error: "restaurant not found"})
	case errors.Is(err, errUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, webhookErrorResponse{Error: "authentication required"})
	default:
		log.Error().Err(err).Msg("Restaurant ownership check failed")
		writeJSON(w, http.StatusInternalServerError, webhookErrorResponse{Error: "internal error"})
	}
}

func (h *CheckoutHandlers) createCheckout(rest *registry.Restaurant, plan Plan) (string, error) {
	if strings.TrimSpace(h.apiKey) == "" {
		return "", fmt.Errorf("stripe api key not configured")
	}
	priceID := h.prices.PriceFor(plan)
	if priceID == "" {
		return "", fmt.Errorf("no price configured for plan %s", plan)
	}

	stripelib.Key = strings.TrimSpace(h.apiKey)
	successURL := buildAppURL(h.baseURL, "/dashboard", url.Values{"checkout": {"success"}})
	cancelURL := buildAppURL(h.baseURL, "/dashboard", url.Values{"checkout": {"cancelled"}})
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL: stripelib.String(successURL),
		CancelURL:  stripelib.String(cancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(priceID),
				Quantity: stripelib.Int64(1),
			},
		},
		Metadata: map[string]string{
			"restaurant_id": rest.ID,
			"plan":          string(plan),
			"price_id":      priceID,
		},
	}
	if rest.StripeCustomerID != "" {
		params.Customer = stripelib.String(rest.StripeCustomerID)
	}

	session, err := h.createCheckoutSession(params)
	if err != nil {
		return "", err
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("stripe returned empty checkout url")
	}
	return session.URL, nil
}

func buildAppURL(baseURL, path string, query url.Values) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return path
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return path
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
