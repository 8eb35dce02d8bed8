package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/services"
)

func newOrderRouter(t *testing.T, svc *orderServiceStub) (http.Handler, *auth.Tokens) {
	t.Helper()
	authn, tokens := newTestAuthenticator(t)
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(authn, svc).Routes))
	return router, tokens
}

const placeOrderBody = `{
	"items":[{"productId":"p1","title":"Phone","quantity":1,"priceCents":9999,"image":"/images/p1.jpg"}],
	"amountCents":10999,
	"address":{
		"firstName":"Dana","lastName":"Reed","email":"dana@example.com",
		"street":"1 Main St","city":"Springfield","state":"IL",
		"zipCode":"62701","country":"US","phone":"555-0100"
	}
}`

func TestPlaceOrderEndpoint(t *testing.T) {
	svc := &orderServiceStub{
		placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			if cmd.UserID != "u1" {
				t.Fatalf("unexpected user: %q", cmd.UserID)
			}
			if len(cmd.Items) != 1 || cmd.Items[0].ProductID != "p1" {
				t.Fatalf("unexpected items: %+v", cmd.Items)
			}
			if cmd.AmountCents != 10999 {
				t.Fatalf("unexpected amount: %d", cmd.AmountCents)
			}
			return services.Order{ID: "order-1", UserID: cmd.UserID}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/order/place-order", strings.NewReader(placeOrderBody))
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "order-1") {
		t.Fatalf("expected order in response, got %s", rec.Body.String())
	}
}

func TestPlaceOrderRequiresAuthentication(t *testing.T) {
	router, _ := newOrderRouter(t, &orderServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/order/place-order", strings.NewReader(placeOrderBody))
	if rec := serveRequest(router, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestStripeCheckoutReturnsRedirect(t *testing.T) {
	svc := &orderServiceStub{
		placeGatewayFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.CheckoutRedirect, error) {
			if cmd.UserID != "u1" {
				t.Fatalf("unexpected user: %q", cmd.UserID)
			}
			return services.CheckoutRedirect{
				OrderID:   "order-1",
				SessionID: "cs_test_1",
				URL:       "https://checkout.stripe.test/cs_test_1",
			}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/order/stripe", strings.NewReader(placeOrderBody))
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var redirect services.CheckoutRedirect
	if err := json.Unmarshal(rec.Body.Bytes(), &redirect); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if redirect.URL != "https://checkout.stripe.test/cs_test_1" {
		t.Fatalf("unexpected redirect: %+v", redirect)
	}
}

func TestStripeCheckoutGatewayDown(t *testing.T) {
	svc := &orderServiceStub{
		placeGatewayFn: func(context.Context, services.PlaceOrderCommand) (services.CheckoutRedirect, error) {
			return services.CheckoutRedirect{}, services.ErrGatewayUnavailable
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/order/stripe", strings.NewReader(placeOrderBody))
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	if rec := serveRequest(router, req); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestWebhookPassesSignatureThrough(t *testing.T) {
	svc := &orderServiceStub{
		gatewayEventFn: func(_ context.Context, payload []byte, signature string) error {
			if string(payload) != `{"type":"checkout.session.completed"}` {
				t.Fatalf("unexpected payload: %s", payload)
			}
			if signature != "t=1,v1=abc" {
				t.Fatalf("unexpected signature: %q", signature)
			}
			return nil
		},
	}
	router, _ := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/order/webhook", strings.NewReader(
		`{"type":"checkout.session.completed"}`,
	))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("expected acknowledgement, got %s", rec.Body.String())
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := &orderServiceStub{
		gatewayEventFn: func(context.Context, []byte, string) error {
			return services.ErrOrderInvalidInput
		},
	}
	router, _ := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/order/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	if rec := serveRequest(router, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdatePaymentEndpoint(t *testing.T) {
	svc := &orderServiceStub{
		updatePaymentFn: func(_ context.Context, cmd services.UpdatePaymentCommand) error {
			if cmd.OrderID != "order-1" || !cmd.Paid {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.Admin {
				t.Fatalf("user token must not carry admin privileges: %+v", cmd)
			}
			return nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/order/update-payment/order-1", strings.NewReader(
		`{"payment":true}`,
	))
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdatePaymentVerificationFailure(t *testing.T) {
	svc := &orderServiceStub{
		updatePaymentFn: func(context.Context, services.UpdatePaymentCommand) error {
			return services.ErrPaymentFailed
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/order/update-payment/order-1", strings.NewReader(
		`{"payment":true}`,
	))
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payment_failed") {
		t.Fatalf("expected payment_failed error, got %s", rec.Body.String())
	}
}

func TestListUserOrders(t *testing.T) {
	svc := &orderServiceStub{
		listUserFn: func(_ context.Context, userID string) ([]services.Order, error) {
			if userID != "u1" {
				t.Fatalf("unexpected user: %q", userID)
			}
			return []services.Order{{ID: "order-1", UserID: userID}}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/order/list-user", nil)
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "order-1") {
		t.Fatalf("expected orders in body, got %s", rec.Body.String())
	}
}

func TestOrderResponseHidesGatewaySession(t *testing.T) {
	svc := &orderServiceStub{
		listUserFn: func(context.Context, string) ([]services.Order, error) {
			return []services.Order{{
				ID:             "order-1",
				UserID:         "u1",
				AmountCents:    10999,
				GatewaySession: "cs_test_1",
				Items:          []services.OrderItem{{ProductID: "p1", Quantity: 1, PriceCents: 9999}},
			}}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/order/list-user", nil)
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	rec := serveRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "cs_test_1") {
		t.Fatalf("gateway session leaked: %s", rec.Body.String())
	}

	var payload struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Orders) != 1 {
		t.Fatalf("expected one order, got %v", payload.Orders)
	}
	order := payload.Orders[0]
	if order["amountCents"] != float64(10999) {
		t.Fatalf("expected amountCents key, got %v", order)
	}
	for _, key := range []string{"AmountCents", "GatewaySession", "gatewaySession"} {
		if _, ok := order[key]; ok {
			t.Fatalf("unexpected key %q in %v", key, order)
		}
	}
}

func TestListAdminRequiresAdminToken(t *testing.T) {
	svc := &orderServiceStub{
		listAllFn: func(_ context.Context, filter services.ListOrdersFilter) (services.OrderListing, error) {
			if filter.PageSize != 10 {
				t.Fatalf("unexpected page size: %d", filter.PageSize)
			}
			return services.OrderListing{
				Orders:        []services.Order{{ID: "order-1"}},
				NextPageToken: "tok",
			}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/order/list-admin?pageSize=10", nil)
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	if rec := serveRequest(router, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for user token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/order/list-admin?pageSize=10", nil)
	req.Header.Set("Authorization", adminBearer(t, tokens))
	rec := serveRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "nextPageToken") {
		t.Fatalf("expected page token in body, got %s", rec.Body.String())
	}
}

func TestUpdateStatusEndpoint(t *testing.T) {
	svc := &orderServiceStub{
		updateStatusFn: func(_ context.Context, orderID string, status services.OrderStatus) (services.Order, error) {
			if orderID != "order-1" || status != services.OrderStatus("shipped") {
				t.Fatalf("unexpected call: id=%q status=%q", orderID, status)
			}
			return services.Order{ID: orderID, Status: status}, nil
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/order/status", strings.NewReader(
		`{"orderId":"order-1","status":"shipped"}`,
	))
	req.Header.Set("Authorization", adminBearer(t, tokens))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	svc := &orderServiceStub{
		updateStatusFn: func(context.Context, string, services.OrderStatus) (services.Order, error) {
			return services.Order{}, services.ErrInvalidStatusTransition
		},
	}
	router, tokens := newOrderRouter(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/order/status", strings.NewReader(
		`{"orderId":"order-1","status":"placed"}`,
	))
	req.Header.Set("Authorization", adminBearer(t, tokens))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_status_transition") {
		t.Fatalf("expected transition error, got %s", rec.Body.String())
	}
}
