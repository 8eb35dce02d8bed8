package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/services"
)

type userServiceStub struct {
	registerFn   func(ctx context.Context, cmd services.RegisterCommand) (string, error)
	loginFn      func(ctx context.Context, email, password string) (string, error)
	adminLoginFn func(ctx context.Context, email, password string) (string, error)
	listFn       func(ctx context.Context) ([]services.UserView, error)
}

func (s *userServiceStub) Register(ctx context.Context, cmd services.RegisterCommand) (string, error) {
	return s.registerFn(ctx, cmd)
}
func (s *userServiceStub) Login(ctx context.Context, email, password string) (string, error) {
	return s.loginFn(ctx, email, password)
}
func (s *userServiceStub) AdminLogin(ctx context.Context, email, password string) (string, error) {
	return s.adminLoginFn(ctx, email, password)
}
func (s *userServiceStub) ListUsers(ctx context.Context) ([]services.UserView, error) {
	return s.listFn(ctx)
}

type cartServiceStub struct {
	addFn    func(ctx context.Context, userID, productID string, quantity int64) (services.CartView, error)
	getFn    func(ctx context.Context, userID string) (services.CartView, error)
	updateFn func(ctx context.Context, userID, productID string, quantity int64) (services.CartView, error)
	removeFn func(ctx context.Context, userID, productID string) (services.CartView, error)
	clearFn  func(ctx context.Context, userID string) error
	countFn  func(ctx context.Context, userID string) (int64, error)
}

func (s *cartServiceStub) AddItem(ctx context.Context, userID, productID string, quantity int64) (services.CartView, error) {
	return s.addFn(ctx, userID, productID, quantity)
}
func (s *cartServiceStub) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	return s.getFn(ctx, userID)
}
func (s *cartServiceStub) UpdateQuantity(ctx context.Context, userID, productID string, quantity int64) (services.CartView, error) {
	return s.updateFn(ctx, userID, productID, quantity)
}
func (s *cartServiceStub) RemoveItem(ctx context.Context, userID, productID string) (services.CartView, error) {
	return s.removeFn(ctx, userID, productID)
}
func (s *cartServiceStub) Clear(ctx context.Context, userID string) error {
	return s.clearFn(ctx, userID)
}
func (s *cartServiceStub) ItemCount(ctx context.Context, userID string) (int64, error) {
	return s.countFn(ctx, userID)
}

type catalogServiceStub struct {
	addFn    func(ctx context.Context, cmd services.AddProductCommand) (services.Product, error)
	getFn    func(ctx context.Context, productID string) (services.Product, error)
	listFn   func(ctx context.Context, filter services.ListProductsFilter) (services.ProductListing, error)
	updateFn func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error)
	removeFn func(ctx context.Context, productID string) error
}

func (s *catalogServiceStub) Add(ctx context.Context, cmd services.AddProductCommand) (services.Product, error) {
	return s.addFn(ctx, cmd)
}
func (s *catalogServiceStub) Get(ctx context.Context, productID string) (services.Product, error) {
	return s.getFn(ctx, productID)
}
func (s *catalogServiceStub) List(ctx context.Context, filter services.ListProductsFilter) (services.ProductListing, error) {
	return s.listFn(ctx, filter)
}
func (s *catalogServiceStub) Update(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	return s.updateFn(ctx, cmd)
}
func (s *catalogServiceStub) Remove(ctx context.Context, productID string) error {
	return s.removeFn(ctx, productID)
}

type orderServiceStub struct {
	placeFn         func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error)
	placeGatewayFn  func(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutRedirect, error)
	updatePaymentFn func(ctx context.Context, cmd services.UpdatePaymentCommand) error
	gatewayEventFn  func(ctx context.Context, payload []byte, signature string) error
	listUserFn      func(ctx context.Context, userID string) ([]services.Order, error)
	listAllFn       func(ctx context.Context, filter services.ListOrdersFilter) (services.OrderListing, error)
	updateStatusFn  func(ctx context.Context, orderID string, status services.OrderStatus) (services.Order, error)
}

func (s *orderServiceStub) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	return s.placeFn(ctx, cmd)
}
func (s *orderServiceStub) PlaceOrderWithGateway(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutRedirect, error) {
	return s.placeGatewayFn(ctx, cmd)
}
func (s *orderServiceStub) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentCommand) error {
	return s.updatePaymentFn(ctx, cmd)
}
func (s *orderServiceStub) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	return s.gatewayEventFn(ctx, payload, signature)
}
func (s *orderServiceStub) ListForUser(ctx context.Context, userID string) ([]services.Order, error) {
	return s.listUserFn(ctx, userID)
}
func (s *orderServiceStub) ListAll(ctx context.Context, filter services.ListOrdersFilter) (services.OrderListing, error) {
	return s.listAllFn(ctx, filter)
}
func (s *orderServiceStub) UpdateStatus(ctx context.Context, orderID string, status services.OrderStatus) (services.Order, error) {
	return s.updateStatusFn(ctx, orderID, status)
}

const (
	testTokenSecret   = "test-secret"
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "sup3r-secret"
)

func newTestAuthenticator(t *testing.T) (*auth.Authenticator, *auth.Tokens) {
	t.Helper()
	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:        testTokenSecret,
		TTL:           time.Hour,
		AdminEmail:    testAdminEmail,
		AdminPassword: testAdminPassword,
	})
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return auth.NewAuthenticator(tokens), tokens
}

func userBearer(t *testing.T, tokens *auth.Tokens, userID string) string {
	t.Helper()
	token, err := tokens.MintUserToken(userID)
	if err != nil {
		t.Fatalf("MintUserToken: %v", err)
	}
	return "Bearer " + token
}

func adminBearer(t *testing.T, tokens *auth.Tokens) string {
	t.Helper()
	token, err := tokens.MintAdminToken(testAdminEmail, testAdminPassword)
	if err != nil {
		t.Fatalf("MintAdminToken: %v", err)
	}
	return "Bearer " + token
}

func serveRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
