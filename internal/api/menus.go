package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/billing"
	"github.com/menushield/menushield/internal/registry"
)

// HandleListMenus lists a restaurant's menus.
// Route: GET /api/restaurants/{restaurant_id}/menus
func HandleListMenus(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}
		menus, err := reg.ListMenus(rest.ID)
		if err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Menu list failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if menus == nil {
			menus = []*registry.Menu{}
		}
		writeJSON(w, http.StatusOK, menus)
	}
}

// HandleCreateMenu creates a menu, enforcing the plan's menu cap.
// Route: POST /api/restaurants/{restaurant_id}/menus
func HandleCreateMenu(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := ownedRestaurant(w, r, reg, strings.TrimSpace(r.PathValue("restaurant_id")))
		if rest == nil {
			return
		}

		var req struct {
			Name     string `json:"name"`
			Position int    `json:"position"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		plan := billing.ResolvePlan(rest)
		if limit := billing.MenuLimit(plan); limit != billing.UnlimitedMenus {
			count, err := reg.CountMenus(rest.ID)
			if err != nil {
				log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Menu count failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if count >= limit {
				writeError(w, http.StatusForbidden, "menu limit reached for current plan")
				return
			}
		}

		id, err := registry.GenerateMenuID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		menu := &registry.Menu{
			ID:           id,
			RestaurantID: rest.ID,
			Name:         name,
			Position:     req.Position,
		}
		if err := reg.CreateMenu(menu); err != nil {
			log.Error().Err(err).Str("restaurant_id", rest.ID).Msg("Menu create failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		log.Info().Str("menu_id", menu.ID).Str("restaurant_id", rest.ID).Msg("Menu created")
		writeJSON(w, http.StatusCreated, menu)
	}
}

// HandleDeleteMenu removes a menu and its dishes.
// Route: DELETE /api/menus/{menu_id}
func HandleDeleteMenu(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		menu, _ := ownedMenu(w, r, reg, strings.TrimSpace(r.PathValue("menu_id")))
		if menu == nil {
			return
		}
		if err := reg.DeleteMenu(menu.ID); err != nil {
			log.Error().Err(err).Str("menu_id", menu.ID).Msg("Menu delete failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
