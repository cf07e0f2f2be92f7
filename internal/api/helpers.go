// Package api holds the dashboard and public-menu HTTP handlers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/auth"
	"github.com/menushield/menushield/internal/registry"
)

const requestBodyLimit = 256 * 1024

func encodeJSON(w http.ResponseWriter, payload any) {
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("api: encode JSON response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestBodyLimit)).Decode(dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeJSON(w, payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ownedRestaurant loads a restaurant and verifies the session user owns it.
// A nil restaurant with nil error means the response has been written.
func ownedRestaurant(w http.ResponseWriter, r *http.Request, reg *registry.Registry, restaurantID string) *registry.Restaurant {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	rest, err := reg.GetRestaurant(restaurantID)
	if err != nil {
		log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Restaurant lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if rest == nil || rest.OwnerID != user.ID {
		// Foreign restaurants look identical to missing ones.
		writeError(w, http.StatusNotFound, "restaurant not found")
		return nil
	}
	return rest
}

// ownedMenu resolves a menu through its restaurant's ownership check.
func ownedMenu(w http.ResponseWriter, r *http.Request, reg *registry.Registry, menuID string) (*registry.Menu, *registry.Restaurant) {
	menu, err := reg.GetMenu(menuID)
	if err != nil {
		log.Error().Err(err).Str("menu_id", menuID).Msg("Menu lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil
	}
	if menu == nil {
		writeError(w, http.StatusNotFound, "menu not found")
		return nil, nil
	}
	rest := ownedRestaurant(w, r, reg, menu.RestaurantID)
	if rest == nil {
		return nil, nil
	}
	return menu, rest
}

// ownedDish resolves a dish through its menu's ownership chain.
func ownedDish(w http.ResponseWriter, r *http.Request, reg *registry.Registry, dishID string) (*registry.Dish, *registry.Restaurant) {
	dish, err := reg.GetDish(dishID)
	if err != nil {
		log.Error().Err(err).Str("dish_id", dishID).Msg("Dish lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil
	}
	if dish == nil {
		writeError(w, http.StatusNotFound, "dish not found")
		return nil, nil
	}
	_, rest := ownedMenu(w, r, reg, dish.MenuID)
	if rest == nil {
		return nil, nil
	}
	return dish, rest
}
