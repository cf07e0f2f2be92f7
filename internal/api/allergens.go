package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/registry"
)

// HandleListAllergens returns the global allergen catalog plus the
// restaurant's own extensions.
// Route: GET /api/restaurants/{restaurant_id}/allergens
func HandleListAllergens(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}
		entries, err := reg.ListAllergens(rest.ID)
		if err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Allergen list failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if entries == nil {
			entries = []*registry.AllergenCatalogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// HandleUpsertAllergen creates or updates a restaurant-defined allergen code.
// Global catalog entries cannot be edited through this route.
// Route: PUT /api/restaurants/{restaurant_id}/allergens
func HandleUpsertAllergen(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}

		var req struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		code := strings.ToUpper(strings.TrimSpace(req.Code))
		name := strings.TrimSpace(req.Name)
		if code == "" || name == "" {
			writeError(w, http.StatusBadRequest, "code and name are required")
			return
		}

		entry := &registry.AllergenCatalogEntry{
			Code:         code,
			RestaurantID: rest.ID,
			Name:         name,
			Description:  strings.TrimSpace(req.Description),
		}
		if err := reg.UpsertAllergen(entry); err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Str("code", code).Msg("Allergen upsert failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// HandleDeleteAllergen removes a restaurant-defined allergen code.
// Route: DELETE /api/restaurants/{restaurant_id}/allergens/{code}
func HandleDeleteAllergen(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}
		code := strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
		if code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		if err := reg.DeleteAllergen(rest.ID, code); err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Str("code", code).Msg("Allergen delete failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
