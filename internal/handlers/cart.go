package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/platform/httpx"
	"github.com/threadline/api/internal/services"
)

// CartHandlers exposes the authenticated cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs the /cart handlers.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser())
	}
	r.Post("/add", h.add)
	r.Get("/get", h.get)
	r.Put("/update", h.update)
	r.Delete("/remove", h.remove)
	r.Delete("/clear", h.clear)
	r.Get("/count", h.count)
}

type cartLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (h *CartHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.carts.AddItem(ctx, uid, req.ProductID, req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "item added to cart",
		"cart":    view,
	})
}

func (h *CartHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"cart": view})
}

func (h *CartHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.carts.UpdateQuantity(ctx, uid, req.ProductID, req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "cart updated",
		"cart":    view,
	})
}

func (h *CartHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.carts.RemoveItem(ctx, uid, req.ProductID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "item removed from cart",
		"cart":    view,
	})
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, uid); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"message": "cart cleared"})
}

func (h *CartHandlers) count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	count, err := h.carts.ItemCount(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"count": count})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
