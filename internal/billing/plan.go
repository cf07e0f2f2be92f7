package billing

import (
	"strings"

	"github.com/menushield/menushield/internal/registry"
)

// Plan is a restaurant's subscription tier.
type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// UnlimitedMenus marks a plan without a menu cap.
const UnlimitedMenus = -1

// ParsePlan normalizes a plan string, returning ok=false for anything outside
// the known tiers.
func ParsePlan(raw string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanStarter:
		return PlanStarter, true
	case PlanPro:
		return PlanPro, true
	case PlanEnterprise:
		return PlanEnterprise, true
	default:
		return "", false
	}
}

// ResolvePlan reads a restaurant's effective plan: the plan field first, then
// the legacy subscription_plan field, defaulting to starter when both are
// absent or unrecognized.
func ResolvePlan(rest *registry.Restaurant) Plan {
	if rest != nil {
		if p, ok := ParsePlan(rest.Plan); ok {
			return p
		}
		if p, ok := ParsePlan(rest.SubscriptionPlan); ok {
			return p
		}
	}
	return PlanStarter
}

// MenuLimit returns how many menus a plan allows, or UnlimitedMenus.
func MenuLimit(p Plan) int {
	switch p {
	case PlanPro:
		return 3
	case PlanEnterprise:
		return UnlimitedMenus
	default:
		return 1
	}
}

// PricePlans maps Stripe price IDs to plans. Prices not in the map resolve to
// starter, so a misconfigured price can only ever under-grant.
type PricePlans map[string]Plan

// PlanFor resolves a price ID, falling back to starter for unknown prices.
func (pp PricePlans) PlanFor(priceID string) Plan {
	if p, ok := pp[strings.TrimSpace(priceID)]; ok {
		return p
	}
	return PlanStarter
}

// PriceFor returns the first price ID mapped to a plan, or "". Used when the
// dashboard creates a checkout session for an upgrade.
func (pp PricePlans) PriceFor(plan Plan) string {
	for price, p := range pp {
		if p == plan {
			return price
		}
	}
	return ""
}

// ParsePricePlanMap parses "price_x=pro,price_y=enterprise" pairs from
// configuration. Unrecognized plans and malformed pairs are dropped.
func ParsePricePlanMap(raw string) PricePlans {
	out := make(PricePlans)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		price := strings.TrimSpace(k)
		plan, ok := ParsePlan(v)
		if price == "" || !ok {
			continue
		}
		out[price] = plan
	}
	return out
}
