package registry

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Restaurant is a tenant record. The dashboard owns identity and theme
// fields; the billing reconciler owns the plan/subscription/stripe fields and
// always writes them together.
type Restaurant struct {
	ID                   string     `json:"id"`
	OwnerID              string     `json:"owner_id"`
	Name                 string     `json:"name"`
	Slug                 string     `json:"slug"`
	ThemePrimaryColor    string     `json:"theme_primary_color,omitempty"`
	ThemeBackgroundColor string     `json:"theme_background_color,omitempty"`
	ThemeTextColor       string     `json:"theme_text_color,omitempty"`
	ThemeAccentColor     string     `json:"theme_accent_color,omitempty"`
	ThemeFontFamily      string     `json:"theme_font_family,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string     `json:"stripe_price_id,omitempty"`
	Plan                 string     `json:"plan"`
	SubscriptionPlan     string     `json:"subscription_plan,omitempty"` // legacy field, read-only
	SubscriptionStatus   string     `json:"subscription_status,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// BillingFields are the restaurant columns owned by the subscription
// reconciler. Applying them is an unconditional overwrite keyed by a stable
// external identifier, so replaying the same event is harmless.
type BillingFields struct {
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	Plan                 string
	SubscriptionStatus   string
}

// Menu groups dishes under a restaurant. Menu count is gated by the plan.
type Menu struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Dish is a menu item. AllergenCodes holds uppercase catalog codes and is
// never nil once loaded.
type Dish struct {
	ID            string    `json:"id"`
	MenuID        string    `json:"menu_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	PriceCents    int64     `json:"price_cents,omitempty"`
	Category      string    `json:"category,omitempty"`
	AllergenCodes []string  `json:"allergens"`
	ImageURL      string    `json:"image_url,omitempty"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AllergenCatalogEntry describes an allergen code. Global entries have an
// empty RestaurantID; restaurant-defined extensions carry their owner's id.
type AllergenCatalogEntry struct {
	Code         string `json:"code"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
}

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func generateID(prefix string) (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}

// GenerateRestaurantID returns a restaurant ID of the form "r-" followed by
// 10 random Crockford base32 characters (50 bits of entropy).
func GenerateRestaurantID() (string, error) { return generateID("r-") }

// GenerateMenuID returns a menu ID of the form "m-".
func GenerateMenuID() (string, error) { return generateID("m-") }

// GenerateDishID returns a dish ID of the form "d-".
func GenerateDishID() (string, error) { return generateID("d-") }

// NormalizeSlug lowercases a slug candidate and keeps only [a-z0-9-].
func NormalizeSlug(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var sb strings.Builder
	lastDash := true // suppress leading dashes
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			sb.WriteByte(c)
			lastDash = false
		case c == '-' || c == ' ' || c == '_':
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}
