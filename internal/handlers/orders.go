package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/platform/httpx"
	"github.com/threadline/api/internal/platform/pagination"
	"github.com/threadline/api/internal/services"
)

// OrderHandlers exposes checkout, order listings, and the payment webhook.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

const maxWebhookBodySize = 256 * 1024

// NewOrderHandlers constructs the /order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the /order endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/webhook", h.webhook)
	if h.authn == nil {
		return
	}

	user := r.With(h.authn.RequireUser())
	user.Post("/place-order", h.placeOrder)
	user.Post("/stripe", h.placeOrderStripe)
	user.Get("/list-user", h.listUser)
	user.Patch("/update-payment/{orderID}", h.updatePayment)

	admin := r.With(h.authn.RequireAdmin())
	admin.Get("/list-admin", h.listAdmin)
	admin.Put("/status", h.updateStatus)
}

type orderItemRequest struct {
	ProductID  string `json:"productId"`
	Title      string `json:"title"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
	Image      string `json:"image"`
}

type addressRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type placeOrderRequest struct {
	Items       []orderItemRequest `json:"items"`
	AmountCents int64              `json:"amountCents"`
	Address     addressRequest     `json:"address"`
}

func (req placeOrderRequest) toCommand(userID string) services.PlaceOrderCommand {
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID:  item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			Image:      item.Image,
		})
	}
	return services.PlaceOrderCommand{
		UserID:      userID,
		Items:       items,
		AmountCents: req.AmountCents,
		Address: domain.Address{
			FirstName: req.Address.FirstName,
			LastName:  req.Address.LastName,
			Email:     req.Address.Email,
			Street:    req.Address.Street,
			City:      req.Address.City,
			State:     req.Address.State,
			ZipCode:   req.Address.ZipCode,
			Country:   req.Address.Country,
			Phone:     req.Address.Phone,
		},
	}
}

type orderItemPayload struct {
	ProductID  string `json:"productId"`
	Title      string `json:"title"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
	Image      string `json:"image,omitempty"`
}

type orderAddressPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// orderPayload is the wire shape of an order. The gateway session reference
// is internal bookkeeping and never serialised.
type orderPayload struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Items           []orderItemPayload  `json:"items"`
	AmountCents     int64               `json:"amountCents"`
	Address         orderAddressPayload `json:"address"`
	PaymentMethod   string              `json:"paymentMethod"`
	Payment         bool                `json:"payment"`
	Status          string              `json:"status"`
	Date            time.Time           `json:"date"`
	StatusUpdatedAt time.Time           `json:"statusUpdatedAt"`
}

func toOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:  item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			Image:      item.Image,
		})
	}
	return orderPayload{
		ID:          order.ID,
		UserID:      order.UserID,
		Items:       items,
		AmountCents: order.AmountCents,
		Address: orderAddressPayload{
			FirstName: order.Address.FirstName,
			LastName:  order.Address.LastName,
			Email:     order.Address.Email,
			Street:    order.Address.Street,
			City:      order.Address.City,
			State:     order.Address.State,
			ZipCode:   order.Address.ZipCode,
			Country:   order.Address.Country,
			Phone:     order.Address.Phone,
		},
		PaymentMethod:   string(order.PaymentMethod),
		Payment:         order.Payment,
		Status:          string(order.Status),
		Date:            order.Date,
		StatusUpdatedAt: order.StatusUpdatedAt,
	}
}

func toOrderPayloads(orders []services.Order) []orderPayload {
	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, toOrderPayload(order))
	}
	return payloads
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.PlaceOrder(ctx, req.toCommand(uid))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "order placed",
		"order":   toOrderPayload(order),
	})
}

func (h *OrderHandlers) placeOrderStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	redirect, err := h.orders.PlaceOrderWithGateway(ctx, req.toCommand(uid))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, redirect)
}

func (h *OrderHandlers) listUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := currentUserID(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.ListForUser(ctx, uid)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"orders": toOrderPayloads(orders)})
}

func (h *OrderHandlers) listAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listing, err := h.orders.ListAll(ctx, services.ListOrdersFilter{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := map[string]any{"orders": toOrderPayloads(listing.Orders)}
	if listing.NextPageToken != "" {
		payload["nextPageToken"] = listing.NextPageToken
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, payload)
}

type updatePaymentRequest struct {
	Payment bool `json:"payment"`
}

func (h *OrderHandlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updatePaymentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Paid:    req.Payment,
		Admin:   identity.IsAdmin(),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"message": "payment status updated"})
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, req.OrderID, domain.OrderStatus(req.Status))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "order status updated",
		"order":   toOrderPayload(order),
	})
}

func (h *OrderHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if err := h.orders.HandleGatewayEvent(ctx, payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"received": true})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidStatusTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be verified", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
