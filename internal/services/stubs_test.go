package services

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/payments"
	"github.com/threadline/api/internal/repositories"
)

type repoErr struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErr) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return "repository error"
}
func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return e.unavailable }

var (
	errRepoNotFound    = repoErr{msg: "not found", notFound: true}
	errRepoConflict    = repoErr{msg: "conflict", conflict: true}
	errRepoUnavailable = repoErr{msg: "backend down", unavailable: true}
)

type productRepoStub struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	failWith  error
	insertErr error
}

func newProductRepoStub(products ...domain.Product) *productRepoStub {
	stub := &productRepoStub{products: make(map[string]domain.Product)}
	for _, p := range products {
		stub.products[p.ID] = p
	}
	return stub
}

func (s *productRepoStub) Insert(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.products[product.ID]; ok {
		return errRepoConflict
	}
	s.products[product.ID] = product
	return nil
}

func (s *productRepoStub) Update(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.products[product.ID] = product
	return nil
}

func (s *productRepoStub) Delete(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.products[productID]; !ok {
		return errRepoNotFound
	}
	delete(s.products, productID)
	return nil
}

func (s *productRepoStub) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.Product{}, s.failWith
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return product, nil
}

func (s *productRepoStub) FindByTitle(_ context.Context, title string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.Product{}, s.failWith
	}
	for _, product := range s.products {
		if product.Title == title {
			return product, nil
		}
	}
	return domain.Product{}, errRepoNotFound
}

func (s *productRepoStub) List(_ context.Context, filter repositories.ProductListFilter) (repositories.ProductPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return repositories.ProductPage{}, s.failWith
	}
	var products []domain.Product
	for _, product := range s.products {
		if filter.Category != "" && product.Category != filter.Category {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return repositories.ProductPage{Products: products}, nil
}

type cartRepoStub struct {
	mu       sync.Mutex
	carts    map[string]domain.Cart
	failWith error
	saveErr  error
	saves    int
	deletes  int
}

func newCartRepoStub() *cartRepoStub {
	return &cartRepoStub{carts: make(map[string]domain.Cart)}
}

func (s *cartRepoStub) Get(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.Cart{}, s.failWith
	}
	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, errRepoNotFound
	}
	return cart, nil
}

func (s *cartRepoStub) Save(_ context.Context, cart domain.Cart, _ *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.failWith != nil {
		return s.failWith
	}
	s.carts[cart.UserID] = cart
	return nil
}

func (s *cartRepoStub) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.carts[userID]; !ok {
		return errRepoNotFound
	}
	delete(s.carts, userID)
	return nil
}

type userRepoStub struct {
	mu        sync.Mutex
	users     map[string]domain.User
	failWith  error
	insertErr error
}

func newUserRepoStub(users ...domain.User) *userRepoStub {
	stub := &userRepoStub{users: make(map[string]domain.User)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *userRepoStub) Insert(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.users[user.ID]; ok {
		return errRepoConflict
	}
	s.users[user.ID] = user
	return nil
}

func (s *userRepoStub) FindByID(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.User{}, s.failWith
	}
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, errRepoNotFound
	}
	return user, nil
}

func (s *userRepoStub) FindByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.User{}, s.failWith
	}
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, errRepoNotFound
}

func (s *userRepoStub) List(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var users []domain.User
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

type orderRepoStub struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	failWith error
}

func newOrderRepoStub(orders ...domain.Order) *orderRepoStub {
	stub := &orderRepoStub{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		stub.orders[o.ID] = o
	}
	return stub
}

func (s *orderRepoStub) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.orders[order.ID]; ok {
		return errRepoConflict
	}
	s.orders[order.ID] = order
	return nil
}

func (s *orderRepoStub) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.Order{}, s.failWith
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errRepoNotFound
	}
	return order, nil
}

func (s *orderRepoStub) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var orders []domain.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Date.After(orders[j].Date) })
	return orders, nil
}

func (s *orderRepoStub) List(_ context.Context, _ repositories.OrderListFilter) (repositories.OrderPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return repositories.OrderPage{}, s.failWith
	}
	var orders []domain.Order
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Date.After(orders[j].Date) })
	return repositories.OrderPage{Orders: orders}, nil
}

func (s *orderRepoStub) SetGatewaySession(_ context.Context, orderID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return errRepoNotFound
	}
	order.GatewaySession = sessionID
	s.orders[orderID] = order
	return nil
}

func (s *orderRepoStub) SetPayment(_ context.Context, orderID string, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	order, ok := s.orders[orderID]
	if !ok {
		return errRepoNotFound
	}
	order.Payment = paid
	s.orders[orderID] = order
	return nil
}

func (s *orderRepoStub) SetStatus(_ context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	order, ok := s.orders[orderID]
	if !ok {
		return errRepoNotFound
	}
	order.Status = status
	order.StatusUpdatedAt = at
	s.orders[orderID] = order
	return nil
}

type gatewayStub struct {
	createReq  *payments.CheckoutRequest
	session    payments.CheckoutSession
	createErr  error
	lookup     payments.SessionDetails
	lookupErr  error
	event      payments.GatewayEvent
	verifyErr  error
	lookupID   string
}

func (g *gatewayStub) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	g.createReq = &req
	if g.createErr != nil {
		return payments.CheckoutSession{}, g.createErr
	}
	return g.session, nil
}

func (g *gatewayStub) LookupSession(_ context.Context, sessionID string) (payments.SessionDetails, error) {
	g.lookupID = sessionID
	if g.lookupErr != nil {
		return payments.SessionDetails{}, g.lookupErr
	}
	return g.lookup, nil
}

func (g *gatewayStub) VerifyEvent(_ []byte, _ string) (payments.GatewayEvent, error) {
	if g.verifyErr != nil {
		return payments.GatewayEvent{}, g.verifyErr
	}
	return g.event, nil
}

type publisherStub struct {
	events     []OrderEvent
	publishErr error
}

func (p *publisherStub) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	if p.publishErr != nil {
		return "", p.publishErr
	}
	p.events = append(p.events, event)
	return "msg-1", nil
}

func testClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
