package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/payments"
)

func testAddress() domain.Address {
	return domain.Address{
		FirstName: "Dana",
		LastName:  "Reed",
		Email:     "dana@example.com",
		Street:    "1 Main St",
		City:      "Springfield",
		State:     "IL",
		ZipCode:   "62701",
		Country:   "US",
		Phone:     "555-0100",
	}
}

type orderServiceFixture struct {
	orders    *orderRepoStub
	products  *productRepoStub
	carts     *cartRepoStub
	gateway   *gatewayStub
	publisher *publisherStub
	svc       OrderService
}

func newOrderServiceFixture(t *testing.T, gateway *gatewayStub) *orderServiceFixture {
	t.Helper()
	f := &orderServiceFixture{
		orders:    newOrderRepoStub(),
		products:  newProductRepoStub(),
		carts:     newCartRepoStub(),
		gateway:   gateway,
		publisher: &publisherStub{},
	}
	deps := OrderServiceDeps{
		Orders:           f.orders,
		Products:         f.products,
		Carts:            f.carts,
		Events:           f.publisher,
		Currency:         "usd",
		ShippingFeeCents: 1000,
		SuccessURL:       "https://shop.test/verify",
		CancelURL:        "https://shop.test/verify",
		Clock:            testClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		IDGenerator:      sequenceIDs("order"),
	}
	if gateway != nil {
		deps.Gateway = gateway
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func TestPlaceOrderSnapshotsAndClearsCart(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.products.products["p1"] = domain.Product{ID: "p1", Title: "Headphones", Image: "products/p1/h.jpg"}
	f.carts.carts["u1"] = domain.Cart{
		UserID: "u1",
		Items:  []domain.CartItem{{ProductID: "p1", Quantity: 1}},
	}

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "u1",
		Items: []domain.OrderItem{
			{ProductID: "p1", Title: "Headphones", Quantity: 1, PriceCents: 4999},
		},
		AmountCents: 5999,
		Address:     testAddress(),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if order.PaymentMethod != domain.PaymentMethodCOD || order.Payment {
		t.Fatalf("expected unpaid cod order, got %+v", order)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected placed status, got %q", order.Status)
	}
	if order.Items[0].Image != "products/p1/h.jpg" {
		t.Fatalf("expected image backfilled, got %q", order.Items[0].Image)
	}
	if _, ok := f.carts.carts["u1"]; ok {
		t.Fatal("expected cart deleted after placement")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != OrderEventPlaced {
		t.Fatalf("expected order.placed event, got %+v", f.publisher.events)
	}
}

func TestPlaceOrderKeepsCartOnInsertFailure(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.orders.failWith = errRepoUnavailable
	f.carts.carts["u1"] = domain.Cart{UserID: "u1"}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:      "u1",
		Items:       []domain.OrderItem{{ProductID: "p1", Title: "Thing", Quantity: 1, PriceCents: 100}},
		AmountCents: 1100,
		Address:     testAddress(),
	})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
	if _, ok := f.carts.carts["u1"]; !ok {
		t.Fatal("cart must survive a failed placement")
	}
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
	}{
		{name: "no items", cmd: PlaceOrderCommand{UserID: "u1", AmountCents: 100, Address: testAddress()}},
		{name: "zero quantity", cmd: PlaceOrderCommand{
			UserID:      "u1",
			Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 0}},
			AmountCents: 100,
			Address:     testAddress(),
		}},
		{name: "missing address", cmd: PlaceOrderCommand{
			UserID:      "u1",
			Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 1, PriceCents: 100}},
			AmountCents: 100,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.PlaceOrder(context.Background(), tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestPlaceOrderWithGatewayBuildsCheckout(t *testing.T) {
	gateway := &gatewayStub{
		session: payments.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"},
	}
	f := newOrderServiceFixture(t, gateway)

	redirect, err := f.svc.PlaceOrderWithGateway(context.Background(), PlaceOrderCommand{
		UserID: "u1",
		Items: []domain.OrderItem{
			{ProductID: "p1", Title: "Headphones", Quantity: 2, PriceCents: 4999},
		},
		AmountCents: 10998,
		Address:     testAddress(),
	})
	if err != nil {
		t.Fatalf("PlaceOrderWithGateway: %v", err)
	}
	if redirect.URL != "https://checkout.test/cs_1" || redirect.SessionID != "cs_1" {
		t.Fatalf("unexpected redirect: %+v", redirect)
	}

	req := gateway.createReq
	if req == nil {
		t.Fatal("expected checkout request captured")
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected product line plus shipping line, got %d", len(req.Items))
	}
	shipping := req.Items[len(req.Items)-1]
	if shipping.Name != "Delivery Charges" || shipping.AmountCents != 1000 || shipping.Quantity != 1 {
		t.Fatalf("unexpected shipping line: %+v", shipping)
	}
	if req.SuccessURL != "https://shop.test/verify?orderId="+redirect.OrderID+"&success=true" {
		t.Fatalf("unexpected success url: %q", req.SuccessURL)
	}

	stored, err := f.orders.FindByID(context.Background(), redirect.OrderID)
	if err != nil {
		t.Fatalf("expected order persisted: %v", err)
	}
	if stored.GatewaySession != "cs_1" {
		t.Fatalf("expected session recorded, got %q", stored.GatewaySession)
	}
	if stored.PaymentMethod != domain.PaymentMethodStripe || stored.Payment {
		t.Fatalf("expected unpaid gateway order, got %+v", stored)
	}
}

func TestPlaceOrderWithGatewayWithoutGateway(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	_, err := f.svc.PlaceOrderWithGateway(context.Background(), PlaceOrderCommand{
		UserID:      "u1",
		Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 1, PriceCents: 100}},
		AmountCents: 1100,
		Address:     testAddress(),
	})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestPlaceOrderWithGatewaySessionFailure(t *testing.T) {
	gateway := &gatewayStub{createErr: errors.New("psp down")}
	f := newOrderServiceFixture(t, gateway)

	_, err := f.svc.PlaceOrderWithGateway(context.Background(), PlaceOrderCommand{
		UserID:      "u1",
		Items:       []domain.OrderItem{{ProductID: "p1", Title: "T", Quantity: 1, PriceCents: 100}},
		AmountCents: 1100,
		Address:     testAddress(),
	})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
}

func TestUpdatePaymentStatusVerifiesGatewaySession(t *testing.T) {
	gateway := &gatewayStub{
		lookup: payments.SessionDetails{ID: "cs_1", Status: payments.StatusPending},
	}
	f := newOrderServiceFixture(t, gateway)
	f.orders.orders["o1"] = domain.Order{
		ID:             "o1",
		UserID:         "u1",
		PaymentMethod:  domain.PaymentMethodStripe,
		GatewaySession: "cs_1",
	}

	err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "o1", Paid: true})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed while session unpaid, got %v", err)
	}
	if gateway.lookupID != "cs_1" {
		t.Fatalf("expected server-side session lookup, got %q", gateway.lookupID)
	}

	gateway.lookup.Status = payments.StatusPaid
	if err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "o1", Paid: true}); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if order := f.orders.orders["o1"]; !order.Payment {
		t.Fatal("expected order marked paid")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != OrderEventPaymentSettled {
		t.Fatalf("expected settlement event, got %+v", f.publisher.events)
	}
}

func TestUpdatePaymentStatusIdempotentAndOneWay(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.orders.orders["o1"] = domain.Order{ID: "o1", PaymentMethod: domain.PaymentMethodCOD, Payment: true}

	if err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "o1", Paid: true}); err != nil {
		t.Fatalf("expected repeated settle to be a no-op, got %v", err)
	}
	err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "o1", Paid: false})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected non-admin revert rejected, got %v", err)
	}
	if err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "o1", Paid: false, Admin: true}); err != nil {
		t.Fatalf("expected admin revert allowed, got %v", err)
	}
}

func TestUpdatePaymentStatusUnknownOrder(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	err := f.svc.UpdatePaymentStatus(context.Background(), UpdatePaymentCommand{OrderID: "missing", Paid: true})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestHandleGatewayEventSettlesPayment(t *testing.T) {
	gateway := &gatewayStub{
		event: payments.GatewayEvent{
			Type: payments.EventSessionCompleted,
			Session: payments.SessionDetails{
				ID:      "cs_1",
				OrderID: "o1",
				Status:  payments.StatusPaid,
			},
		},
	}
	f := newOrderServiceFixture(t, gateway)
	f.orders.orders["o1"] = domain.Order{ID: "o1", UserID: "u1", PaymentMethod: domain.PaymentMethodStripe}

	if err := f.svc.HandleGatewayEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleGatewayEvent: %v", err)
	}
	if order := f.orders.orders["o1"]; !order.Payment {
		t.Fatal("expected payment settled by webhook")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != OrderEventPaymentSettled {
		t.Fatalf("expected settlement event, got %+v", f.publisher.events)
	}

	// Redelivery of the same event is a no-op.
	if err := f.svc.HandleGatewayEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleGatewayEvent redelivery: %v", err)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("expected no duplicate event, got %d", len(f.publisher.events))
	}
}

func TestHandleGatewayEventRejectsBadSignature(t *testing.T) {
	gateway := &gatewayStub{verifyErr: payments.ErrInvalidSignature}
	f := newOrderServiceFixture(t, gateway)

	err := f.svc.HandleGatewayEvent(context.Background(), []byte("{}"), "bad")
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.orders.orders["o1"] = domain.Order{ID: "o1", Status: domain.OrderStatusPlaced}

	order, err := f.svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusPacking)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusPacking {
		t.Fatalf("expected packing, got %q", order.Status)
	}

	if _, err := f.svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusPlaced); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected backward transition rejected, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), "o1", "teleported"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected unknown status rejected, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusCancelled); err != nil {
		t.Fatalf("expected cancel before delivery allowed: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusShipped); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected terminal state frozen, got %v", err)
	}
}

func TestListForUserAndListAll(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.orders.orders["o1"] = domain.Order{ID: "o1", UserID: "u1", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.orders.orders["o2"] = domain.Order{ID: "o2", UserID: "u2", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	f.orders.orders["o3"] = domain.Order{ID: "o3", UserID: "u1", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	mine, err := f.svc.ListForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "o3" {
		t.Fatalf("expected u1 orders newest first, got %+v", mine)
	}

	all, err := f.svc.ListAll(context.Background(), ListOrdersFilter{PageSize: 10})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all.Orders) != 3 {
		t.Fatalf("expected all orders, got %d", len(all.Orders))
	}
}
