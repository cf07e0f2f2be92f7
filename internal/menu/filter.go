package menu

import (
	"sort"
	"strings"
)

// Mode selects how an active allergen filter treats matching dishes.
type Mode string

const (
	// ModeSafe keeps only dishes free of every selected allergen.
	ModeSafe Mode = "safe"
	// ModeContains keeps only dishes carrying at least one selected allergen.
	ModeContains Mode = "contains"
)

// Badge is the per-dish marker shown next to a dish under an active filter.
type Badge string

const (
	BadgeSafe     Badge = "safe"
	BadgeContains Badge = "contains"
	BadgeNone     Badge = ""
)

// Dish is the filter engine's read-only view of a menu item. Allergen codes
// are uppercase catalog tokens (GL, CE, NU, ...); callers normalize with
// NormalizeCodes before handing dishes to the engine.
type Dish struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	PriceCents    int64    `json:"price_cents,omitempty"`
	Category      string   `json:"category,omitempty"`
	AllergenCodes []string `json:"allergens"`
}

// Selection is a guest's transient filter state. An empty Allergens set means
// no allergen filtering at all; Category "" means all categories. Mode has no
// observable effect while Allergens is empty.
type Selection struct {
	Allergens map[string]bool
	Mode      Mode
	Category  string
}

// Facets are the distinct allergen codes and categories present in a dish
// list, used to build filter controls.
type Facets struct {
	AllergenCodes []string `json:"allergen_codes"`
	Categories    []string `json:"categories"`
}

// DeriveFacets collects the distinct allergen codes and categories across
// dishes. Both sequences are sorted ascending; dishes without a category
// contribute no category entry.
func DeriveFacets(dishes []Dish) Facets {
	codes := make(map[string]bool)
	categories := make(map[string]bool)
	for _, d := range dishes {
		for _, c := range d.AllergenCodes {
			if c != "" {
				codes[c] = true
			}
		}
		if d.Category != "" {
			categories[d.Category] = true
		}
	}
	return Facets{
		AllergenCodes: sortedKeys(codes),
		Categories:    sortedKeys(categories),
	}
}

// FilterDishes applies the category filter, then the allergen filter, and
// preserves input order. An empty allergen selection shows everything that
// passes the category filter; it never means "show nothing".
func FilterDishes(dishes []Dish, sel Selection) []Dish {
	out := make([]Dish, 0, len(dishes))
	for _, d := range dishes {
		if sel.Category != "" && d.Category != sel.Category {
			continue
		}
		out = append(out, d)
	}
	if len(sel.Allergens) == 0 {
		return out
	}

	filtered := out[:0]
	for _, d := range out {
		hit := hasSelectedAllergen(d, sel.Allergens)
		switch sel.Mode {
		case ModeContains:
			if hit {
				filtered = append(filtered, d)
			}
		default: // ModeSafe
			if !hit {
				filtered = append(filtered, d)
			}
		}
	}
	return filtered
}

// BadgeFor returns the badge a dish earns under the current selection.
// Without selected allergens there is no badge. The badge condition is
// asymmetric: safe mode only badges non-conflicting dishes, contains mode
// only badges conflicting ones.
func BadgeFor(d Dish, sel Selection) Badge {
	if len(sel.Allergens) == 0 {
		return BadgeNone
	}
	hit := hasSelectedAllergen(d, sel.Allergens)
	switch sel.Mode {
	case ModeContains:
		if hit {
			return BadgeContains
		}
	default: // ModeSafe
		if !hit {
			return BadgeSafe
		}
	}
	return BadgeNone
}

// Toggle returns a copy of set with code flipped (single-element symmetric
// difference). The input set is never mutated. Used for allergen selection
// and pin-for-service bookmarks alike.
func Toggle(set map[string]bool, code string) map[string]bool {
	out := make(map[string]bool, len(set)+1)
	for k := range set {
		out[k] = true
	}
	if out[code] {
		delete(out, code)
	} else if code != "" {
		out[code] = true
	}
	return out
}

// ToggleCategory implements exclusive category selection: picking the current
// category clears it, picking another replaces it.
func ToggleCategory(current, category string) string {
	if current == category {
		return ""
	}
	return category
}

// NormalizeCodes uppercases, trims, and de-duplicates allergen codes,
// converting a nil slice to an empty one. Malformed dish rows are repaired
// here so the engine itself stays total.
func NormalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func hasSelectedAllergen(d Dish, selected map[string]bool) bool {
	for _, c := range d.AllergenCodes {
		if selected[c] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
