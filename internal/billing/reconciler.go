package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/auditlog"
	"github.com/menushield/menushield/internal/metrics"
	"github.com/menushield/menushield/internal/registry"
)

// Reconciler applies payment-processor lifecycle events to restaurant billing
// state. Every transition is an unconditional overwrite keyed by a stable
// external identifier, so at-least-once delivery and racing deliveries are
// both safe: the last write wins and only billing-owned fields are touched.
type Reconciler struct {
	registry *registry.Registry
	prices   PricePlans
	audit    *auditlog.Log
}

// EventMeta carries delivery context for audit records.
type EventMeta struct {
	EventID   string
	ClientIP  string
	RequestID string
}

// NewReconciler creates a Reconciler. audit may be nil in tests.
func NewReconciler(reg *registry.Registry, prices PricePlans, audit *auditlog.Log) *Reconciler {
	if prices == nil {
		prices = PricePlans{}
	}
	return &Reconciler{
		registry: reg,
		prices:   prices,
		audit:    audit,
	}
}

// HandleCheckout links a restaurant to its Stripe customer and activates the
// purchased plan. Re-applying the same event yields the same state.
func (rc *Reconciler) HandleCheckout(_ context.Context, session CheckoutSession, meta EventMeta) error {
	const eventType = "checkout.session.completed"

	restaurantID := session.RestaurantID()
	customerID := strings.TrimSpace(session.Customer)

	if restaurantID == "" {
		// Retrying cannot conjure the missing metadata, so acknowledge.
		log.Warn().
			Str("event_id", meta.EventID).
			Str("customer_id", customerID).
			Msg("Checkout event missing restaurant_id metadata, dropping")
		rc.record(eventType, auditlog.OutcomeSkipped, "missing restaurant_id metadata", "", customerID, meta)
		return nil
	}
	if customerID == "" {
		return fmt.Errorf("checkout session missing customer")
	}
	if !IsSafeStripeID(customerID) {
		return fmt.Errorf("invalid stripe customer id: %s", customerID)
	}

	plan, ok := ParsePlan(session.Metadata["plan"])
	if !ok {
		plan = PlanPro
	}

	n, err := rc.registry.ApplyBillingByID(restaurantID, registry.BillingFields{
		StripeCustomerID:     customerID,
		StripeSubscriptionID: strings.TrimSpace(session.Subscription),
		StripePriceID:        strings.TrimSpace(session.Metadata["price_id"]),
		Plan:                 string(plan),
		SubscriptionStatus:   "active",
	})
	if err != nil {
		return fmt.Errorf("apply checkout to restaurant %s: %w", restaurantID, err)
	}
	if n == 0 {
		log.Warn().
			Str("event_id", meta.EventID).
			Str("restaurant_id", restaurantID).
			Msg("Checkout event references unknown restaurant, dropping")
		rc.record(eventType, auditlog.OutcomeSkipped, "unknown restaurant", restaurantID, customerID, meta)
		return nil
	}

	log.Info().
		Str("restaurant_id", restaurantID).
		Str("customer_id", customerID).
		Str("plan", string(plan)).
		Msg("Checkout applied")
	rc.record(eventType, auditlog.OutcomeProcessed, "", restaurantID, customerID, meta)
	return nil
}

// HandleSubscriptionUpdated reconciles plan and status from a subscription
// lifecycle event keyed by Stripe customer id.
func (rc *Reconciler) HandleSubscriptionUpdated(ctx context.Context, sub Subscription, meta EventMeta) error {
	return rc.applySubscription(ctx, "customer.subscription.updated", sub, meta)
}

// HandleSubscriptionDeleted handles the terminal subscription event. Stripe
// reports status "canceled" on the payload; it is stored verbatim like any
// other status.
func (rc *Reconciler) HandleSubscriptionDeleted(ctx context.Context, sub Subscription, meta EventMeta) error {
	if strings.TrimSpace(sub.Status) == "" {
		sub.Status = "canceled"
	}
	return rc.applySubscription(ctx, "customer.subscription.deleted", sub, meta)
}

func (rc *Reconciler) applySubscription(_ context.Context, eventType string, sub Subscription, meta EventMeta) error {
	customerID := strings.TrimSpace(sub.Customer)
	if customerID == "" {
		log.Warn().
			Str("event_id", meta.EventID).
			Str("type", eventType).
			Msg("Subscription event missing customer id, dropping")
		rc.record(eventType, auditlog.OutcomeSkipped, "missing customer id", "", "", meta)
		return nil
	}
	if !IsSafeStripeID(customerID) {
		return fmt.Errorf("invalid stripe customer id: %s", customerID)
	}

	priceID := sub.FirstPriceID()
	plan := rc.prices.PlanFor(priceID)
	status := strings.TrimSpace(sub.Status)

	n, err := rc.registry.ApplyBillingByStripeCustomerID(customerID, registry.BillingFields{
		StripeSubscriptionID: strings.TrimSpace(sub.ID),
		StripePriceID:        priceID,
		Plan:                 string(plan),
		SubscriptionStatus:   status,
	})
	if err != nil {
		return fmt.Errorf("apply subscription for customer %s: %w", customerID, err)
	}
	if n == 0 {
		// The customer is not linked to any restaurant we know. Not a
		// transient error, so acknowledge rather than invite a retry storm.
		log.Warn().
			Str("event_id", meta.EventID).
			Str("customer_id", customerID).
			Str("type", eventType).
			Msg("Subscription event for unknown customer, dropping")
		rc.record(eventType, auditlog.OutcomeSkipped, "unknown customer", "", customerID, meta)
		return nil
	}

	log.Info().
		Str("customer_id", customerID).
		Str("plan", string(plan)).
		Str("status", status).
		Str("type", eventType).
		Msg("Subscription state reconciled")
	rc.record(eventType, auditlog.OutcomeProcessed, "", "", customerID, meta)
	return nil
}

func (rc *Reconciler) record(eventType string, outcome auditlog.Outcome, detail, restaurantID, customerID string, meta EventMeta) {
	metrics.ReconcileTotal.WithLabelValues(eventType, string(outcome)).Inc()
	if rc.audit == nil {
		return
	}
	err := rc.audit.Record(auditlog.Entry{
		EventID:      meta.EventID,
		EventType:    eventType,
		Outcome:      outcome,
		Detail:       detail,
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		ClientIP:     meta.ClientIP,
		RequestID:    meta.RequestID,
	})
	if err != nil {
		log.Warn().Err(err).Str("event_id", meta.EventID).Msg("Failed to write webhook audit record")
	}
}

// RecordIgnored audits an event type we acknowledge but do not handle.
func (rc *Reconciler) RecordIgnored(eventType string, meta EventMeta) {
	rc.record(eventType, auditlog.OutcomeIgnored, "unhandled event type", "", "", meta)
}

// RecordRejected audits a delivery that failed verification or decoding.
func (rc *Reconciler) RecordRejected(eventType, detail string, meta EventMeta) {
	rc.record(eventType, auditlog.OutcomeRejected, detail, "", "", meta)
}
