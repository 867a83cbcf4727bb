package designs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-atelier/internal/cart"
	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// Handler exposes the public design endpoints.
type Handler struct {
	Service    *Service
	Validate   *validator.Validate
	Production bool
}

// Routes mounts the design endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/store/designs/config", h.config)
	r.Post("/store/designs/price", h.price)
	r.Post("/store/designs/add", h.add)
}

func (h *Handler) config(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"config": h.Service.Config()})
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	quote, err := h.Service.Price(r.Context(), req)
	if err != nil {
		h.writeError(w, err, http.StatusUnprocessableEntity)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"quote": quote})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.AddToCart(r.Context(), req)
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"cart": c})
}

// decode parses and validates the request body, writing the error response
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "invalid_payload", "request body must be valid JSON", nil)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		details := []map[string]string{}
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				details = append(details, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
			}
		}
		common.JSONError(w, http.StatusBadRequest, "validation_failed", "missing or invalid fields", details)
		return false
	}
	return true
}

// writeError maps service errors to responses; selectionStatus carries the
// per-endpoint status for user-correctable selection errors.
func (h *Handler) writeError(w http.ResponseWriter, err error, selectionStatus int) {
	var selErr *pricing.InvalidSelectionError
	if errors.As(err, &selErr) {
		common.JSONError(w, selectionStatus, "invalid_selection", selErr.Error(), map[string]string{
			"axis":  selErr.Axis,
			"value": selErr.Value,
		})
		return
	}
	if appErr, ok := common.AsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		var details any = appErr.Details
		if details == nil && !h.Production {
			details = appErr.Error()
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, details)
		return
	}
	switch {
	case errors.Is(err, cart.ErrCartNotFound):
		common.JSONError(w, http.StatusNotFound, "cart_not_found", "cart not found", nil)
	case errors.Is(err, cart.ErrRegionNotFound):
		common.JSONError(w, http.StatusNotFound, "region_not_found", "unknown region", nil)
	default:
		var details any
		if !h.Production {
			details = err.Error()
		}
		common.JSONError(w, http.StatusInternalServerError, "internal", "internal error", details)
	}
}
