package billing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/menushield/menushield/internal/auditlog"
	"github.com/menushield/menushield/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func newTestAudit(t *testing.T) *auditlog.Log {
	t.Helper()
	audit, err := auditlog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("auditlog.Open: %v", err)
	}
	t.Cleanup(func() { _ = audit.Close() })
	return audit
}

func createTestRestaurant(t *testing.T, reg *registry.Registry, id string) *registry.Restaurant {
	t.Helper()
	rest := &registry.Restaurant{
		ID:      id,
		OwnerID: "u-owner",
		Name:    "Trattoria " + id,
		Slug:    "trattoria-" + id,
	}
	if err := reg.CreateRestaurant(rest); err != nil {
		t.Fatalf("CreateRestaurant: %v", err)
	}
	return rest
}

func TestHandleCheckoutLinksAndActivates(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	rc := NewReconciler(reg, nil, audit)
	createTestRestaurant(t, reg, "r1")

	session := CheckoutSession{
		ID:           "cs_test_1",
		Mode:         "subscription",
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"restaurant_id": "r1", "plan": "pro"},
	}
	meta := EventMeta{EventID: "evt_1"}
	if err := rc.HandleCheckout(context.Background(), session, meta); err != nil {
		t.Fatalf("HandleCheckout: %v", err)
	}

	rest, err := reg.GetRestaurant("r1")
	if err != nil || rest == nil {
		t.Fatalf("GetRestaurant: %v, %v", rest, err)
	}
	if rest.StripeCustomerID != "cus_1" || rest.StripeSubscriptionID != "sub_1" {
		t.Fatalf("linkage not applied: %+v", rest)
	}
	if rest.Plan != "pro" || rest.SubscriptionStatus != "active" {
		t.Fatalf("plan/status = %q/%q", rest.Plan, rest.SubscriptionStatus)
	}

	entries, err := audit.ListByEventID("evt_1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries = %v, %v", entries, err)
	}
	if entries[0].Outcome != auditlog.OutcomeProcessed {
		t.Fatalf("audit outcome = %q", entries[0].Outcome)
	}
}

func TestHandleCheckoutIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	rc := NewReconciler(reg, nil, nil)
	createTestRestaurant(t, reg, "r1")

	session := CheckoutSession{
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"restaurant_id": "r1", "plan": "pro"},
	}
	for i := 0; i < 3; i++ {
		if err := rc.HandleCheckout(context.Background(), session, EventMeta{EventID: "evt_dup"}); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.StripeCustomerID != "cus_1" || rest.Plan != "pro" || rest.SubscriptionStatus != "active" {
		t.Fatalf("state drifted after replays: %+v", rest)
	}
}

func TestHandleCheckoutMissingRestaurantMetadata(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	rc := NewReconciler(reg, nil, audit)
	createTestRestaurant(t, reg, "r1")

	session := CheckoutSession{Customer: "cus_orphan", Metadata: map[string]string{}}
	// Acknowledged, not retried: the metadata will never appear.
	if err := rc.HandleCheckout(context.Background(), session, EventMeta{EventID: "evt_orphan"}); err != nil {
		t.Fatalf("HandleCheckout: %v", err)
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.StripeCustomerID != "" || rest.SubscriptionStatus != "" {
		t.Fatalf("unrelated restaurant touched: %+v", rest)
	}
	entries, _ := audit.ListByEventID("evt_orphan")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeSkipped {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestHandleCheckoutUnknownRestaurant(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	rc := NewReconciler(reg, nil, audit)

	session := CheckoutSession{
		Customer: "cus_1",
		Metadata: map[string]string{"restaurant_id": "r-missing"},
	}
	if err := rc.HandleCheckout(context.Background(), session, EventMeta{EventID: "evt_missing"}); err != nil {
		t.Fatalf("HandleCheckout: %v", err)
	}
	entries, _ := audit.ListByEventID("evt_missing")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeSkipped {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestHandleSubscriptionUpdated(t *testing.T) {
	reg := newTestRegistry(t)
	rc := NewReconciler(reg, PricePlans{"price_ent": PlanEnterprise}, nil)
	createTestRestaurant(t, reg, "r1")

	// Link via checkout first.
	checkout := CheckoutSession{
		Customer: "cus_1",
		Metadata: map[string]string{"restaurant_id": "r1", "plan": "pro"},
	}
	if err := rc.HandleCheckout(context.Background(), checkout, EventMeta{}); err != nil {
		t.Fatalf("HandleCheckout: %v", err)
	}

	var sub Subscription
	payload := `{"id":"sub_2","customer":"cus_1","status":"past_due","items":{"data":[{"price":{"id":"price_ent"}}]}}`
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		t.Fatalf("unmarshal subscription: %v", err)
	}

	if err := rc.HandleSubscriptionUpdated(context.Background(), sub, EventMeta{}); err != nil {
		t.Fatalf("HandleSubscriptionUpdated: %v", err)
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.Plan != "enterprise" {
		t.Fatalf("plan = %q, want enterprise", rest.Plan)
	}
	if rest.SubscriptionStatus != "past_due" {
		t.Fatalf("status = %q, want past_due (stored verbatim)", rest.SubscriptionStatus)
	}
	if rest.StripeSubscriptionID != "sub_2" {
		t.Fatalf("subscription id = %q", rest.StripeSubscriptionID)
	}
}

func TestHandleSubscriptionDeletedDowngrades(t *testing.T) {
	reg := newTestRegistry(t)
	rc := NewReconciler(reg, PricePlans{"price_pro": PlanPro}, nil)
	createTestRestaurant(t, reg, "r1")

	checkout := CheckoutSession{
		Customer: "cus_1",
		Metadata: map[string]string{"restaurant_id": "r1", "plan": "pro"},
	}
	if err := rc.HandleCheckout(context.Background(), checkout, EventMeta{}); err != nil {
		t.Fatalf("HandleCheckout: %v", err)
	}

	var sub Subscription
	sub.ID = "sub_1"
	sub.Customer = "cus_1"
	if err := rc.HandleSubscriptionDeleted(context.Background(), sub, EventMeta{}); err != nil {
		t.Fatalf("HandleSubscriptionDeleted: %v", err)
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.SubscriptionStatus != "canceled" {
		t.Fatalf("status = %q, want canceled", rest.SubscriptionStatus)
	}
	// No price in the payload resolves to the fallback plan.
	if rest.Plan != "starter" {
		t.Fatalf("plan = %q, want starter", rest.Plan)
	}
}

func TestHandleSubscriptionUnknownCustomer(t *testing.T) {
	reg := newTestRegistry(t)
	audit := newTestAudit(t)
	rc := NewReconciler(reg, nil, audit)
	createTestRestaurant(t, reg, "r1")

	var sub Subscription
	sub.ID = "sub_x"
	sub.Customer = "cus_unknown"
	sub.Status = "active"
	if err := rc.HandleSubscriptionUpdated(context.Background(), sub, EventMeta{EventID: "evt_unk"}); err != nil {
		t.Fatalf("HandleSubscriptionUpdated: %v", err)
	}

	rest, _ := reg.GetRestaurant("r1")
	if rest.Plan != "starter" || rest.SubscriptionStatus != "" || rest.StripeSubscriptionID != "" {
		t.Fatalf("unlinked restaurant corrupted: %+v", rest)
	}
	entries, _ := audit.ListByCustomer("cus_unknown")
	if len(entries) != 1 || entries[0].Outcome != auditlog.OutcomeSkipped {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestHandleSubscriptionRejectsUnsafeCustomerID(t *testing.T) {
	reg := newTestRegistry(t)
	rc := NewReconciler(reg, nil, nil)

	var sub Subscription
	sub.Customer = "cus_1; DROP TABLE restaurants"
	if err := rc.HandleSubscriptionUpdated(context.Background(), sub, EventMeta{}); err == nil {
		t.Fatal("expected error for unsafe customer id")
	}
}
