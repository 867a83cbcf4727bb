package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// Handler exposes the cart endpoints.
type Handler struct {
	Orchestrator *Orchestrator
	Store        Store
	Production   bool
}

// Routes mounts the cart endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/store/carts/{id}", h.getCart)
	r.Post("/store/carts/{id}", h.updateCart)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "invalid_cart_id", "cart id must be a UUID", nil)
		return
	}
	cart, err := h.Store.GetCart(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "invalid_cart_id", "cart id must be a UUID", nil)
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "invalid_payload", "request body must be valid JSON", nil)
		return
	}
	cart, err := h.Orchestrator.UpdateCart(r.Context(), cartID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCartNotFound):
		common.JSONError(w, http.StatusNotFound, "cart_not_found", "cart not found", nil)
	case errors.Is(err, ErrRegionNotFound):
		common.JSONError(w, http.StatusBadRequest, "region_not_found", "unknown region", nil)
	default:
		var details any
		if !h.Production {
			details = err.Error()
		}
		common.JSONError(w, http.StatusInternalServerError, "cart_update_failed", "cart update failed", details)
	}
}
