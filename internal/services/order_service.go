package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/payments"
	"github.com/threadline/api/internal/platform/requestctx"
	"github.com/threadline/api/internal/repositories"
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrGatewayUnavailable indicates no payment gateway is configured.
var ErrGatewayUnavailable = errors.New("order service: payment gateway unavailable")

// ErrPaymentFailed indicates the gateway rejected or has not confirmed the payment.
var ErrPaymentFailed = errors.New("order service: payment failed")

// ErrInvalidStatusTransition indicates the fulfilment status change is not allowed.
var ErrInvalidStatusTransition = errors.New("order service: invalid status transition")

// ErrOrderUnavailable indicates the order service cannot fulfil the request due to backend issues.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// OrderServiceDeps wires the repositories, payment gateway, and event
// publisher for order operations. Gateway and Events are optional.
type OrderServiceDeps struct {
	Orders           repositories.OrderRepository
	Products         repositories.ProductRepository
	Carts            repositories.CartRepository
	Gateway          payments.Provider
	Events           OrderEventPublisher
	Currency         string
	ShippingFeeCents int64
	SuccessURL       string
	CancelURL        string
	Clock            func() time.Time
	IDGenerator      func() string
}

type orderService struct {
	orders       repositories.OrderRepository
	products     repositories.ProductRepository
	carts        repositories.CartRepository
	gateway      payments.Provider
	events       OrderEventPublisher
	currency     string
	shippingFee  int64
	successURL   string
	cancelURL    string
	now          func() time.Time
	newID        func() string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	shippingFee := deps.ShippingFeeCents
	if shippingFee < 0 {
		return nil, errors.New("order service: shipping fee must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &orderService{
		orders:      deps.Orders,
		products:    deps.Products,
		carts:       deps.Carts,
		gateway:     deps.Gateway,
		events:      deps.Events,
		currency:    currency,
		shippingFee: shippingFee,
		successURL:  strings.TrimSpace(deps.SuccessURL),
		cancelURL:   strings.TrimSpace(deps.CancelURL),
		now:         func() time.Time { return clock().UTC() },
		newID:       newID,
	}, nil
}

// PlaceOrder creates a cash-on-delivery order from the client snapshot,
// clears the cart, and announces the placement.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	order, err := s.buildOrder(cmd, domain.PaymentMethodCOD)
	if err != nil {
		return Order{}, err
	}

	s.backfillImages(ctx, &order)

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, translateOrderRepoError(err)
	}

	s.clearCart(ctx, order.UserID)
	s.publish(ctx, OrderEvent{
		Type:          OrderEventPlaced,
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: string(order.PaymentMethod),
		AmountCents:   order.AmountCents,
		OccurredAt:    order.Date,
	})
	return order, nil
}

// PlaceOrderWithGateway creates an unpaid order and opens a hosted checkout
// session for it. The shopper is redirected to the returned URL; payment is
// settled later by webhook or server-verified polling.
func (s *orderService) PlaceOrderWithGateway(ctx context.Context, cmd PlaceOrderCommand) (CheckoutRedirect, error) {
	if s.gateway == nil {
		return CheckoutRedirect{}, ErrGatewayUnavailable
	}

	order, err := s.buildOrder(cmd, domain.PaymentMethodStripe)
	if err != nil {
		return CheckoutRedirect{}, err
	}

	s.backfillImages(ctx, &order)

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutRedirect{}, translateOrderRepoError(err)
	}

	items := make([]payments.CheckoutItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, payments.CheckoutItem{
			Name:        item.Title,
			AmountCents: item.PriceCents,
			Quantity:    item.Quantity,
		})
	}
	if s.shippingFee > 0 {
		items = append(items, payments.CheckoutItem{
			Name:        "Delivery Charges",
			AmountCents: s.shippingFee,
			Quantity:    1,
		})
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Currency:   s.currency,
		SuccessURL: redirectURL(s.successURL, true, order.ID),
		CancelURL:  redirectURL(s.cancelURL, false, order.ID),
		Items:      items,
	})
	if err != nil {
		requestctx.Logger(ctx).Error("checkout session creation failed",
			zap.String("orderId", order.ID),
			zap.Error(err),
		)
		return CheckoutRedirect{}, ErrPaymentFailed
	}

	if err := s.orders.SetGatewaySession(ctx, order.ID, session.ID); err != nil {
		// Settlement still works through the webhook, which carries the
		// order ID in the session metadata.
		requestctx.Logger(ctx).Warn("failed to record gateway session",
			zap.String("orderId", order.ID),
			zap.String("sessionId", session.ID),
			zap.Error(err),
		)
	}

	return CheckoutRedirect{
		OrderID:   order.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

// UpdatePaymentStatus marks an order paid or unpaid. Gateway orders are
// re-checked against the checkout session before a non-admin caller can
// mark them paid.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return translateOrderRepoError(err)
	}
	if order.Payment == cmd.Paid {
		return nil
	}
	if !cmd.Admin && !cmd.Paid {
		return fmt.Errorf("%w: payment cannot be reverted", ErrOrderInvalidInput)
	}

	if cmd.Paid && !cmd.Admin && order.PaymentMethod == domain.PaymentMethodStripe {
		if s.gateway == nil {
			return ErrGatewayUnavailable
		}
		if order.GatewaySession == "" {
			return fmt.Errorf("%w: no checkout session recorded", ErrPaymentFailed)
		}
		details, err := s.gateway.LookupSession(ctx, order.GatewaySession)
		if err != nil {
			requestctx.Logger(ctx).Error("gateway session lookup failed",
				zap.String("orderId", order.ID),
				zap.Error(err),
			)
			return ErrGatewayUnavailable
		}
		if details.Status != payments.StatusPaid {
			return ErrPaymentFailed
		}
	}

	if err := s.orders.SetPayment(ctx, orderID, cmd.Paid); err != nil {
		return translateOrderRepoError(err)
	}
	if cmd.Paid {
		s.publish(ctx, OrderEvent{
			Type:          OrderEventPaymentSettled,
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: string(order.PaymentMethod),
			AmountCents:   order.AmountCents,
			OccurredAt:    s.now(),
		})
	}
	return nil
}

// HandleGatewayEvent verifies a webhook notification and settles payment on
// checkout completion.
func (s *orderService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return ErrGatewayUnavailable
	}

	event, err := s.gateway.VerifyEvent(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	logger := requestctx.Logger(ctx)
	switch event.Type {
	case payments.EventSessionCompleted:
		orderID := strings.TrimSpace(event.Session.OrderID)
		if orderID == "" {
			logger.Warn("gateway event without order reference",
				zap.String("sessionId", event.Session.ID),
			)
			return nil
		}
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			if repositories.IsNotFound(err) {
				logger.Warn("gateway event for unknown order",
					zap.String("orderId", orderID),
				)
				return nil
			}
			return translateOrderRepoError(err)
		}
		if order.Payment {
			return nil
		}
		if err := s.orders.SetPayment(ctx, orderID, true); err != nil {
			return translateOrderRepoError(err)
		}
		s.publish(ctx, OrderEvent{
			Type:          OrderEventPaymentSettled,
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: string(order.PaymentMethod),
			AmountCents:   order.AmountCents,
			OccurredAt:    s.now(),
		})
	case payments.EventSessionExpired:
		logger.Info("checkout session expired",
			zap.String("orderId", event.Session.OrderID),
			zap.String("sessionId", event.Session.ID),
		)
	default:
		logger.Debug("ignoring gateway event", zap.String("type", string(event.Type)))
	}
	return nil
}

// ListForUser returns the user's orders, newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, uid)
	if err != nil {
		return nil, translateOrderRepoError(err)
	}
	return orders, nil
}

// ListAll returns a page of every order for the admin panel.
func (s *orderService) ListAll(ctx context.Context, filter ListOrdersFilter) (OrderListing, error) {
	startAfter, err := decodeTimeCursor(filter.PageToken)
	if err != nil {
		return OrderListing{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		PageSize:   filter.PageSize,
		StartAfter: startAfter,
	})
	if err != nil {
		return OrderListing{}, translateOrderRepoError(err)
	}

	listing := OrderListing{Orders: page.Orders}
	if len(page.NextCursor) > 0 {
		token, err := encodeTimeCursor(page.NextCursor)
		if err != nil {
			return OrderListing{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
		listing.NextPageToken = token
	}
	return listing, nil
}

// UpdateStatus applies a validated fulfilment status transition.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}
	if order.Status == status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, order.Status, status)
	}

	at := s.now()
	if err := s.orders.SetStatus(ctx, oid, status, at); err != nil {
		return Order{}, translateOrderRepoError(err)
	}
	order.Status = status
	order.StatusUpdatedAt = at
	return order, nil
}

func (s *orderService) buildOrder(cmd PlaceOrderCommand, method domain.PaymentMethod) (domain.Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return domain.Order{}, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order has no items", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: each item needs a product and a positive quantity", ErrOrderInvalidInput)
		}
	}
	if cmd.AmountCents <= 0 {
		return domain.Order{}, fmt.Errorf("%w: amount must be positive", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	return domain.Order{
		ID:              s.newID(),
		UserID:          uid,
		Items:           append([]domain.OrderItem(nil), cmd.Items...),
		AmountCents:     cmd.AmountCents,
		Address:         cmd.Address,
		PaymentMethod:   method,
		Payment:         false,
		Status:          domain.OrderStatusPlaced,
		Date:            now,
		StatusUpdatedAt: now,
	}, nil
}

// backfillImages fills missing item images from the catalog. Best effort;
// a failed lookup leaves the image blank.
func (s *orderService) backfillImages(ctx context.Context, order *domain.Order) {
	for i := range order.Items {
		if order.Items[i].Image != "" {
			continue
		}
		product, err := s.products.FindByID(ctx, order.Items[i].ProductID)
		if err != nil {
			requestctx.Logger(ctx).Warn("image backfill lookup failed",
				zap.String("productId", order.Items[i].ProductID),
				zap.Error(err),
			)
			continue
		}
		order.Items[i].Image = product.Image
	}
}

// clearCart removes the cart after a successful placement. The order stands
// even if the delete fails.
func (s *orderService) clearCart(ctx context.Context, userID string) {
	if err := s.carts.Delete(ctx, userID); err != nil && !repositories.IsNotFound(err) {
		requestctx.Logger(ctx).Warn("failed to clear cart after order placement",
			zap.String("userId", userID),
			zap.Error(err),
		)
	}
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		requestctx.Logger(ctx).Warn("failed to publish order event",
			zap.String("type", string(event.Type)),
			zap.String("orderId", event.OrderID),
			zap.Error(err),
		)
	}
}

func validateAddress(addr domain.Address) error {
	missing := ""
	switch {
	case strings.TrimSpace(addr.FirstName) == "":
		missing = "firstName"
	case strings.TrimSpace(addr.LastName) == "":
		missing = "lastName"
	case strings.TrimSpace(addr.Email) == "":
		missing = "email"
	case strings.TrimSpace(addr.Street) == "":
		missing = "street"
	case strings.TrimSpace(addr.City) == "":
		missing = "city"
	case strings.TrimSpace(addr.State) == "":
		missing = "state"
	case strings.TrimSpace(addr.ZipCode) == "":
		missing = "zipCode"
	case strings.TrimSpace(addr.Country) == "":
		missing = "country"
	case strings.TrimSpace(addr.Phone) == "":
		missing = "phone"
	}
	if missing != "" {
		return fmt.Errorf("%w: address %s is required", ErrOrderInvalidInput, missing)
	}
	return nil
}

func redirectURL(base string, success bool, orderID string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	q := u.Query()
	if success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func translateOrderRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrOrderNotFound
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}
