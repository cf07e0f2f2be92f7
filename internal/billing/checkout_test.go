package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/registry"
)

func authedRequest(method, target, body, userID string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: userID, Email: "owner@example.com"}))
}

func TestHandleCreateCheckout(t *testing.T) {
	reg := newTestRegistry(t)
	createTestRestaurant(t, reg, "r1")

	h := NewCheckoutHandlers("sk_test_key", "https://menushield.example.com", PricePlans{"price_pro": PlanPro}, reg)
	var gotParams *stripelib.CheckoutSessionParams
	h.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		gotParams = params
		return &stripelib.CheckoutSession{URL: "https://checkout.stripe.com/pay/cs_test"}, nil
	}

	rec := httptest.NewRecorder()
	h.HandleCreateCheckout(rec, authedRequest(http.MethodPost, "/api/billing/checkout", `{"restaurant_id":"r1","plan":"pro"}`, "u-owner"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%q", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["checkout_url"] == "" {
		t.Fatalf("response = %q", rec.Body.String())
	}
	if gotParams == nil {
		t.Fatal("checkout session never created")
	}
	if gotParams.Metadata["restaurant_id"] != "r1" || gotParams.Metadata["plan"] != "pro" {
		t.Fatalf("metadata = %+v", gotParams.Metadata)
	}
	if got := stripelib.StringValue(gotParams.LineItems[0].Price); got != "price_pro" {
		t.Fatalf("price = %q", got)
	}
	if !strings.Contains(stripelib.StringValue(gotParams.SuccessURL), "menushield.example.com") {
		t.Fatalf("success url = %q", stripelib.StringValue(gotParams.SuccessURL))
	}
}

func TestHandleCreateCheckoutRejectsStarter(t *testing.T) {
	reg := newTestRegistry(t)
	h := NewCheckoutHandlers("sk_test_key", "https://menushield.example.com", PricePlans{}, reg)

	rec := httptest.NewRecorder()
	h.HandleCreateCheckout(rec, authedRequest(http.MethodPost, "/api/billing/checkout", `{"restaurant_id":"r1","plan":"starter"}`, "u-owner"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleCreateCheckoutOwnershipEnforced(t *testing.T) {
	reg := newTestRegistry(t)
	createTestRestaurant(t, reg, "r1")

	h := NewCheckoutHandlers("sk_test_key", "https://menushield.example.com", PricePlans{"price_pro": PlanPro}, reg)
	h.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		t.Fatal("checkout must not be created for a foreign restaurant")
		return nil, nil
	}

	rec := httptest.NewRecorder()
	h.HandleCreateCheckout(rec, authedRequest(http.MethodPost, "/api/billing/checkout", `{"restaurant_id":"r1","plan":"pro"}`, "u-intruder"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCreatePortal(t *testing.T) {
	reg := newTestRegistry(t)
	rest := createTestRestaurant(t, reg, "r1")
	if _, err := reg.ApplyBillingByID(rest.ID, registry.BillingFields{
		StripeCustomerID:   "cus_1",
		Plan:               "pro",
		SubscriptionStatus: "active",
	}); err != nil {
		t.Fatalf("ApplyBillingByID: %v", err)
	}

	h := NewCheckoutHandlers("sk_test_key", "https://menushield.example.com", PricePlans{}, reg)
	h.createPortalSession = func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error) {
		if got := stripelib.StringValue(params.Customer); got != "cus_1" {
			t.Fatalf("portal customer = %q", got)
		}
		return &stripelib.BillingPortalSession{URL: "https://billing.stripe.com/session/xyz"}, nil
	}

	rec := httptest.NewRecorder()
	h.HandleCreatePortal(rec, authedRequest(http.MethodPost, "/api/billing/portal", `{"restaurant_id":"r1"}`, "u-owner"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%q", rec.Code, rec.Body.String())
	}
}

func TestHandleCreatePortalWithoutCustomer(t *testing.T) {
	reg := newTestRegistry(t)
	createTestRestaurant(t, reg, "r1")

	h := NewCheckoutHandlers("sk_test_key", "https://menushield.example.com", PricePlans{}, reg)
	rec := httptest.NewRecorder()
	h.HandleCreatePortal(rec, authedRequest(http.MethodPost, "/api/billing/portal", `{"restaurant_id":"r1"}`, "u-owner"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
