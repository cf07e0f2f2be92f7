package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menushield/menushield/internal/blob"
	"github.com/menushield/menushield/internal/menu"
	"github.com/menushield/menushield/internal/metrics"
	"github.com/menushield/menushield/internal/registry"
)

type dishRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PriceCents  int64    `json:"price_cents"`
	Category    string   `json:"category"`
	Allergens   []string `json:"allergens"`
	Position    int      `json:"position"`
}

// HandleListDishes lists a menu's dishes in stable position order.
// Route: GET /api/menus/{menu_id}/dishes
func HandleListDishes(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		m, _ := ownedMenu(w, r, reg, strings.TrimSpace(r.PathValue("menu_id")))
		if m == nil {
			return
		}
		dishes, err := reg.ListDishes(m.ID)
		if err != nil {
			log.Error().Err(err).Str("menu_id", m.ID).Msg("Dish list failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if dishes == nil {
			dishes = []*registry.Dish{}
		}
		writeJSON(w, http.StatusOK, dishes)
	}
}

// HandleCreateDish creates a dish. Allergen codes are normalized to uppercase
// before storage so every downstream comparison is exact.
// Route: POST /api/menus/{menu_id}/dishes
func HandleCreateDish(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		m, _ := ownedMenu(w, r, reg, strings.TrimSpace(r.PathValue("menu_id")))
		if m == nil {
			return
		}

		var req dishRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.PriceCents < 0 {
			writeError(w, http.StatusBadRequest, "price_cents cannot be negative")
			return
		}

		id, err := registry.GenerateDishID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		dish := &registry.Dish{
			ID:            id,
			MenuID:        m.ID,
			Name:          name,
			Description:   strings.TrimSpace(req.Description),
			PriceCents:    req.PriceCents,
			Category:      strings.TrimSpace(req.Category),
			AllergenCodes: menu.NormalizeCodes(req.Allergens),
			Position:      req.Position,
		}
		if err := reg.CreateDish(dish); err != nil {
			log.Error().Err(err).Str("menu_id", m.ID).Msg("Dish create failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, dish)
	}
}

// HandleUpdateDish replaces a dish's editable fields.
// Route: PUT /api/dishes/{dish_id}
func HandleUpdateDish(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut && r.Method != http.MethodPatch {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		dish, _ := ownedDish(w, r, reg, strings.TrimSpace(r.PathValue("dish_id")))
		if dish == nil {
			return
		}

		var req dishRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.PriceCents < 0 {
			writeError(w, http.StatusBadRequest, "price_cents cannot be negative")
			return
		}

		dish.Name = name
		dish.Description = strings.TrimSpace(req.Description)
		dish.PriceCents = req.PriceCents
		dish.Category = strings.TrimSpace(req.Category)
		dish.AllergenCodes = menu.NormalizeCodes(req.Allergens)
		dish.Position = req.Position

		if err := reg.UpdateDish(dish); err != nil {
			log.Error().Err(err).Str("dish_id", dish.ID).Msg("Dish update failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, dish)
	}
}

// HandleDeleteDish removes a dish.
// Route: DELETE /api/dishes/{dish_id}
func HandleDeleteDish(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		dish, _ := ownedDish(w, r, reg, strings.TrimSpace(r.PathValue("dish_id")))
		if dish == nil {
			return
		}
		if err := reg.DeleteDish(dish.ID); err != nil {
			log.Error().Err(err).Str("dish_id", dish.ID).Msg("Dish delete failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUploadDishImage accepts a raw image body, stores it in the blob
// store, and records the public URL on the dish.
// Route: POST /api/dishes/{dish_id}/image
func HandleUploadDishImage(reg *registry.Registry, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		dish, _ := ownedDish(w, r, reg, strings.TrimSpace(r.PathValue("dish_id")))
		if dish == nil {
			return
		}

		contentType := r.Header.Get("Content-Type")
		ext, ok := blob.ExtensionFor(contentType)
		if !ok {
			metrics.ImageUploadsTotal.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusUnsupportedMediaType, "image must be jpeg, png, or webp")
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, blob.MaxUploadBytes))
		if err != nil {
			metrics.ImageUploadsTotal.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}

		url, err := store.Upload(r.Context(), dish.ID+ext, data, contentType)
		if err != nil {
			metrics.ImageUploadsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("dish_id", dish.ID).Msg("Image upload failed")
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		if err := reg.SetDishImage(dish.ID, url); err != nil {
			metrics.ImageUploadsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("dish_id", dish.ID).Msg("Image URL persist failed")
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		metrics.ImageUploadsTotal.WithLabelValues("ok").Inc()
		dish.ImageURL = url
		writeJSON(w, http.StatusOK, dish)
	}
}
