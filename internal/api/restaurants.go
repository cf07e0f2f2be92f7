package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/billing"
	"github.com/menushield/menushield/internal/registry"
)

type restaurantRequest struct {
	Name                 string `json:"name"`
	Slug                 string `json:"slug"`
	ThemePrimaryColor    string `json:"theme_primary_color"`
	ThemeBackgroundColor string `json:"theme_background_color"`
	ThemeTextColor       string `json:"theme_text_color"`
	ThemeAccentColor     string `json:"theme_accent_color"`
	ThemeFontFamily      string `json:"theme_font_family"`
}

// restaurantResponse augments the stored row with derived plan facts so the
// dashboard does not re-implement plan policy.
type restaurantResponse struct {
	*registry.Restaurant
	EffectivePlan string `json:"effective_plan"`
	MenuLimit     int    `json:"menu_limit"`
}

func toRestaurantResponse(rest *registry.Restaurant) restaurantResponse {
	plan := billing.ResolvePlan(rest)
	return restaurantResponse{
		Restaurant:    rest,
		EffectivePlan: string(plan),
		MenuLimit:     billing.MenuLimit(plan),
	}
}

// HandleListRestaurants lists the session user's restaurants.
// Route: GET /api/restaurants
func HandleListRestaurants(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user := auth.UserFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		rests, err := reg.ListRestaurantsByOwner(user.ID)
		if err != nil {
			log.Error().Err(err).Msg("Restaurant list failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]restaurantResponse, 0, len(rests))
		for _, rest := range rests {
			out = append(out, toRestaurantResponse(rest))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleCreateRestaurant creates a restaurant owned by the session user.
// Route: POST /api/restaurants
func HandleCreateRestaurant(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user := auth.UserFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var req restaurantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		slug := registry.NormalizeSlug(req.Slug)
		if slug == "" {
			slug = registry.NormalizeSlug(name)
		}
		if slug == "" {
			writeError(w, http.StatusBadRequest, "slug is required")
			return
		}
		if existing, err := reg.GetRestaurantBySlug(slug); err != nil {
			log.Error().Err(err).Msg("Slug lookup failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		} else if existing != nil {
			writeError(w, http.StatusConflict, "slug already taken")
			return
		}

		id, err := registry.GenerateRestaurantID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		rest := &registry.Restaurant{
			ID:                   id,
			OwnerID:              user.ID,
			Name:                 name,
			Slug:                 slug,
			ThemePrimaryColor:    strings.TrimSpace(req.ThemePrimaryColor),
			ThemeBackgroundColor: strings.TrimSpace(req.ThemeBackgroundColor),
			ThemeTextColor:       strings.TrimSpace(req.ThemeTextColor),
			ThemeAccentColor:     strings.TrimSpace(req.ThemeAccentColor),
			ThemeFontFamily:      strings.TrimSpace(req.ThemeFontFamily),
		}
		if err := reg.CreateRestaurant(rest); err != nil {
			log.Error().Err(err).Msg("Restaurant create failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		log.Info().Str("restaurant_id", rest.ID).Str("owner_id", user.ID).Msg("Restaurant created")
		writeJSON(w, http.StatusCreated, toRestaurantResponse(rest))
	}
}

// HandleGetRestaurant returns one of the session user's restaurants.
// Route: GET /api/restaurants/{restaurant_id}
func HandleGetRestaurant(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}
		writeJSON(w, http.StatusOK, toRestaurantResponse(rest))
	}
}

// HandleUpdateRestaurant updates name, slug, and theme fields. Billing fields
// are not writable here; only the webhook reconciler touches them.
// Route: PATCH /api/restaurants/{restaurant_id}
func HandleUpdateRestaurant(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}

		var req struct {
			Name                 *string `json:"name,omitempty"`
			Slug                 *string `json:"slug,omitempty"`
			ThemePrimaryColor    *string `json:"theme_primary_color,omitempty"`
			ThemeBackgroundColor *string `json:"theme_background_color,omitempty"`
			ThemeTextColor       *string `json:"theme_text_color,omitempty"`
			ThemeAccentColor     *string `json:"theme_accent_color,omitempty"`
			ThemeFontFamily      *string `json:"theme_font_family,omitempty"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				writeError(w, http.StatusBadRequest, "name cannot be empty")
				return
			}
			rest.Name = name
		}
		if req.Slug != nil {
			slug := registry.NormalizeSlug(*req.Slug)
			if slug == "" {
				writeError(w, http.StatusBadRequest, "invalid slug")
				return
			}
			if slug != rest.Slug {
				if existing, err := reg.GetRestaurantBySlug(slug); err != nil {
					writeError(w, http.StatusInternalServerError, "internal error")
					return
				} else if existing != nil {
					writeError(w, http.StatusConflict, "slug already taken")
					return
				}
				rest.Slug = slug
			}
		}
		if req.ThemePrimaryColor != nil {
			rest.ThemePrimaryColor = strings.TrimSpace(*req.ThemePrimaryColor)
		}
		if req.ThemeBackgroundColor != nil {
			rest.ThemeBackgroundColor = strings.TrimSpace(*req.ThemeBackgroundColor)
		}
		if req.ThemeTextColor != nil {
			rest.ThemeTextColor = strings.TrimSpace(*req.ThemeTextColor)
		}
		if req.ThemeAccentColor != nil {
			rest.ThemeAccentColor = strings.TrimSpace(*req.ThemeAccentColor)
		}
		if req.ThemeFontFamily != nil {
			rest.ThemeFontFamily = strings.TrimSpace(*req.ThemeFontFamily)
		}

		if err := reg.UpdateRestaurantProfile(rest); err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Restaurant update failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toRestaurantResponse(rest))
	}
}

// HandleDeleteRestaurant removes a restaurant and, via cascade, its menus and
// dishes.
// Route: DELETE /api/restaurants/{restaurant_id}
func HandleDeleteRestaurant(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}
		if err := reg.DeleteRestaurant(rest.ID); err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Restaurant delete failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		log.Info().Str("restaurant_id", rest.ID).Msg("Restaurant deleted")
		w.WriteHeader(http.StatusNoContent)
	}
}
