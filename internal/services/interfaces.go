// Package services implements the storefront use cases on top of the
// repository contracts. Handlers depend on these interfaces only.
package services

import (
	"context"
	"io"
	"time"

	"github.com/threadline/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product       = domain.Product
	User          = domain.User
	Cart          = domain.Cart
	CartItem      = domain.CartItem
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	Address       = domain.Address
	OrderStatus   = domain.OrderStatus
	PaymentMethod = domain.PaymentMethod
)

// CartLine is one cart entry joined with live catalog data.
type CartLine struct {
	ProductID     string  `json:"productId"`
	Title         string  `json:"title"`
	PriceCents    int64   `json:"priceCents"`
	Image         string  `json:"image"`
	Quantity      int64   `json:"quantity"`
	SubtotalCents int64   `json:"subtotalCents"`
}

// CartView is the denormalised cart returned to clients. Totals are always
// recomputed from live catalog prices, never stored.
type CartView struct {
	UserID           string     `json:"userId"`
	Lines            []CartLine `json:"items"`
	TotalItems       int64      `json:"totalItems"`
	TotalAmountCents int64      `json:"totalAmountCents"`
	LastModified     time.Time  `json:"lastModified"`
}

// CartService manages the per-user cart aggregate.
type CartService interface {
	AddItem(ctx context.Context, userID, productID string, quantity int64) (CartView, error)
	GetCart(ctx context.Context, userID string) (CartView, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int64) (CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (CartView, error)
	Clear(ctx context.Context, userID string) error
	ItemCount(ctx context.Context, userID string) (int64, error)
}

// ImageUpload carries an uploaded product image.
type ImageUpload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// AddProductCommand captures the admin product-creation payload. Price and
// Rating are accepted as free text and normalised before persistence.
type AddProductCommand struct {
	Title       string
	Price       string
	Description string
	Rating      string
	Category    string
	ImageLink   string
	ProductLink string
	Stock       *int64
	Image       *ImageUpload
}

// UpdateProductCommand captures a partial admin product update. Nil fields
// are left unchanged.
type UpdateProductCommand struct {
	ProductID   string
	Title       *string
	Price       *string
	Description *string
	Rating      *string
	Category    *string
	ImageLink   *string
	ProductLink *string
	Stock       *int64
	Image       *ImageUpload
}

// ListProductsFilter narrows and pages the public catalog listing.
type ListProductsFilter struct {
	Category  string
	PageSize  int
	PageToken string
}

// ProductListing is one page of catalog results. An empty NextPageToken
// means the listing is exhausted.
type ProductListing struct {
	Products      []Product
	NextPageToken string
}

// CatalogService manages the product catalog.
type CatalogService interface {
	Add(ctx context.Context, cmd AddProductCommand) (Product, error)
	Get(ctx context.Context, productID string) (Product, error)
	List(ctx context.Context, filter ListProductsFilter) (ProductListing, error)
	Update(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	Remove(ctx context.Context, productID string) error
}

// RegisterCommand captures the shopper registration payload.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
}

// UserView is a user projection safe to serialise; the password hash never
// leaves the service layer.
type UserView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserService manages shopper accounts and token issuance.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	AdminLogin(ctx context.Context, email, password string) (string, error)
	ListUsers(ctx context.Context) ([]UserView, error)
}

// PlaceOrderCommand captures an order placement. Items and amount arrive
// from the client and are snapshotted as-is, with missing item images
// back-filled from the catalog.
type PlaceOrderCommand struct {
	UserID      string
	Items       []OrderItem
	AmountCents int64
	Address     Address
}

// CheckoutRedirect is the gateway session handed back for redirection.
type CheckoutRedirect struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	URL       string `json:"sessionUrl"`
}

// UpdatePaymentCommand marks an order paid or unpaid. Non-admin callers may
// only move unpaid orders to paid.
type UpdatePaymentCommand struct {
	OrderID string
	Paid    bool
	Admin   bool
}

// ListOrdersFilter pages the admin order listing.
type ListOrdersFilter struct {
	PageSize  int
	PageToken string
}

// OrderListing is one page of the admin order listing.
type OrderListing struct {
	Orders        []Order
	NextPageToken string
}

// OrderService orchestrates checkout, payment settlement, and fulfilment.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	PlaceOrderWithGateway(ctx context.Context, cmd PlaceOrderCommand) (CheckoutRedirect, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentCommand) error
	HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error
	ListForUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context, filter ListOrdersFilter) (OrderListing, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error)
}

// OrderEventType identifies order lifecycle notifications.
type OrderEventType string

const (
	// OrderEventPlaced fires when an order is created.
	OrderEventPlaced OrderEventType = "order.placed"
	// OrderEventPaymentSettled fires when an order's payment is confirmed.
	OrderEventPaymentSettled OrderEventType = "order.payment_settled"
)

// OrderEvent is the message published for downstream consumers.
type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderID       string         `json:"orderId"`
	UserID        string         `json:"userId"`
	PaymentMethod string         `json:"paymentMethod"`
	AmountCents   int64          `json:"amountCents"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// OrderEventPublisher enqueues order events for downstream consumers.
// Publishing is best effort; failures never fail the order flow.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}
