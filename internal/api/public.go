package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/menu"
	"github.com/menushield/menushield/internal/metrics"
	"github.com/menushield/menushield/internal/registry"
)

// publicDish is a dish with its filter badge for the current selection.
type publicDish struct {
	menu.Dish
	ImageURL string     `json:"image_url,omitempty"`
	Badge    menu.Badge `json:"badge,omitempty"`
}

type publicMenuResponse struct {
	Restaurant struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"restaurant"`
	Dishes []publicDish `json:"dishes"`
	Facets menu.Facets  `json:"facets"`
}

// HandlePublicMenu serves a restaurant's published menu by slug. Optional
// query parameters apply the allergen filter server-side:
//
//	allergens=GL,MI  comma-separated selected codes
//	mode=safe|contains
//	category=Desserts
//
// Without parameters the full menu is returned with facets for the client.
// Route: GET /api/public-menu/{slug}
func HandlePublicMenu(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		slug := registry.NormalizeSlug(r.PathValue("slug"))
		rest, err := reg.GetRestaurantBySlug(slug)
		if err != nil {
			metrics.PublicMenuRequestsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("slug", slug).Msg("Public menu lookup failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if rest == nil {
			metrics.PublicMenuRequestsTotal.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}

		rows, err := reg.ListDishesByRestaurant(rest.ID)
		if err != nil {
			metrics.PublicMenuRequestsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Public menu dish load failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		images := make(map[string]string, len(rows))
		dishes := make([]menu.Dish, 0, len(rows))
		for _, d := range rows {
			images[d.ID] = d.ImageURL
			dishes = append(dishes, menu.Dish{
				ID:            d.ID,
				Name:          d.Name,
				Description:   d.Description,
				PriceCents:    d.PriceCents,
				Category:      d.Category,
				AllergenCodes: d.AllergenCodes,
			})
		}

		sel := selectionFromQuery(r)
		visible := menu.FilterDishes(dishes, sel)

		var resp publicMenuResponse
		resp.Restaurant.Name = rest.Name
		resp.Restaurant.Slug = rest.Slug
		resp.Facets = menu.DeriveFacets(dishes)
		resp.Dishes = make([]publicDish, 0, len(visible))
		for _, d := range visible {
			resp.Dishes = append(resp.Dishes, publicDish{
				Dish:     d,
				ImageURL: images[d.ID],
				Badge:    menu.BadgeFor(d, sel),
			})
		}

		metrics.PublicMenuRequestsTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandlePublicTheme serves a restaurant's computed style tokens for the
// public menu page.
// Route: GET /api/public-menu/{slug}/theme
func HandlePublicTheme(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		slug := registry.NormalizeSlug(r.PathValue("slug"))
		rest, err := reg.GetRestaurantBySlug(slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if rest == nil {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		tokens := menu.StyleTokens(menu.Theme{
			PrimaryColor:    rest.ThemePrimaryColor,
			BackgroundColor: rest.ThemeBackgroundColor,
			TextColor:       rest.ThemeTextColor,
			AccentColor:     rest.ThemeAccentColor,
			FontFamily:      rest.ThemeFontFamily,
		})
		writeJSON(w, http.StatusOK, tokens)
	}
}

func selectionFromQuery(r *http.Request) menu.Selection {
	sel := menu.Selection{
		Mode:     menu.ModeSafe,
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	}
	if mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode"))); mode == string(menu.ModeContains) {
		sel.Mode = menu.ModeContains
	}
	codes := menu.NormalizeCodes(strings.Split(r.URL.Query().Get("allergens"), ","))
	if len(codes) > 0 {
		sel.Allergens = make(map[string]bool, len(codes))
		for _, c := range codes {
			sel.Allergens[c] = true
		}
	}
	return sel
}
