package billing

import (
	"testing"

	"github.com/menushield/menushield/internal/registry"
)

func TestParsePlan(t *testing.T) {
	cases := []struct {
		raw  string
		want Plan
		ok   bool
	}{
		{"starter", PlanStarter, true},
		{"pro", PlanPro, true},
		{"enterprise", PlanEnterprise, true},
		{" Pro ", PlanPro, true},
		{"ENTERPRISE", PlanEnterprise, true},
		{"", "", false},
		{"gold", "", false},
	}
	for _, tc := range cases {
		got, ok := ParsePlan(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParsePlan(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResolvePlan(t *testing.T) {
	if got := ResolvePlan(nil); got != PlanStarter {
		t.Fatalf("nil restaurant = %q", got)
	}
	if got := ResolvePlan(&registry.Restaurant{}); got != PlanStarter {
		t.Fatalf("empty restaurant = %q", got)
	}
	if got := ResolvePlan(&registry.Restaurant{Plan: "enterprise"}); got != PlanEnterprise {
		t.Fatalf("plan field = %q", got)
	}
	// Legacy field only applies when the primary field is absent or bogus.
	if got := ResolvePlan(&registry.Restaurant{SubscriptionPlan: "pro"}); got != PlanPro {
		t.Fatalf("legacy field = %q", got)
	}
	if got := ResolvePlan(&registry.Restaurant{Plan: "pro", SubscriptionPlan: "enterprise"}); got != PlanPro {
		t.Fatalf("plan field must win over legacy = %q", got)
	}
	if got := ResolvePlan(&registry.Restaurant{Plan: "bogus", SubscriptionPlan: "bogus"}); got != PlanStarter {
		t.Fatalf("unrecognized plans = %q", got)
	}
}

func TestMenuLimit(t *testing.T) {
	if got := MenuLimit(PlanStarter); got != 1 {
		t.Fatalf("starter = %d", got)
	}
	if got := MenuLimit(PlanPro); got != 3 {
		t.Fatalf("pro = %d", got)
	}
	if got := MenuLimit(PlanEnterprise); got != UnlimitedMenus {
		t.Fatalf("enterprise = %d", got)
	}
	if got := MenuLimit(Plan("bogus")); got != 1 {
		t.Fatalf("unknown plan = %d", got)
	}
}

func TestPricePlansPlanFor(t *testing.T) {
	pp := PricePlans{"price_pro": PlanPro, "price_ent": PlanEnterprise}
	if got := pp.PlanFor("price_pro"); got != PlanPro {
		t.Fatalf("price_pro = %q", got)
	}
	if got := pp.PlanFor(" price_ent "); got != PlanEnterprise {
		t.Fatalf("trimmed lookup = %q", got)
	}
	if got := pp.PlanFor("price_unknown"); got != PlanStarter {
		t.Fatalf("unknown price = %q", got)
	}
	if got := pp.PlanFor(""); got != PlanStarter {
		t.Fatalf("empty price = %q", got)
	}
}

func TestParsePricePlanMap(t *testing.T) {
	pp := ParsePricePlanMap("price_a=pro, price_b=enterprise ,bogus,=pro,price_c=gold")
	if len(pp) != 2 {
		t.Fatalf("parsed %d entries, want 2: %+v", len(pp), pp)
	}
	if pp["price_a"] != PlanPro || pp["price_b"] != PlanEnterprise {
		t.Fatalf("unexpected map: %+v", pp)
	}
	if got := ParsePricePlanMap(""); len(got) != 0 {
		t.Fatalf("empty input produced %+v", got)
	}
}

func TestPriceFor(t *testing.T) {
	pp := PricePlans{"price_pro": PlanPro}
	if got := pp.PriceFor(PlanPro); got != "price_pro" {
		t.Fatalf("PriceFor(pro) = %q", got)
	}
	if got := pp.PriceFor(PlanEnterprise); got != "" {
		t.Fatalf("unmapped plan = %q", got)
	}
}
