// Package domain holds the persisted entities shared by repositories and
// services. Monetary amounts are stored as integer cents; decimal dollars
// only appear at the HTTP boundary.
package domain

import "time"

// Product is a catalog entry managed through the admin panel.
type Product struct {
	ID          string
	Title       string
	PriceCents  int64
	Description string
	Rating      *float64
	Image       string
	ImageLink   string
	ProductLink string
	Category    string
	Stock       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tracked reports whether the product carries stock accounting. A zero
// stock value means the product is untracked and never sells out.
func (p Product) Tracked() bool { return p.Stock > 0 }

// User is a registered shopper. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CartItem is a single line in a cart. Quantity is always positive; a
// quantity of zero is represented by the line being absent.
type CartItem struct {
	ProductID string
	Quantity  int64
	AddedAt   time.Time
}

// Cart aggregates the items a user intends to purchase. The document is
// keyed by the owning user so each user holds at most one cart.
type Cart struct {
	UserID       string
	Items        []CartItem
	CreatedAt    time.Time
	LastModified time.Time
}

// Line returns the index of the item for the given product, or -1.
func (c Cart) Line(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// TotalQuantity sums the quantities across all lines.
func (c Cart) TotalQuantity() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Address is the shipping destination captured at checkout.
type Address struct {
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	ZipCode   string
	Country   string
	Phone     string
}

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodStripe PaymentMethod = "stripe"
)

// Valid reports whether the payment method is one the API accepts.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodStripe
}

// OrderStatus tracks fulfilment progress.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusPacking   OrderStatus = "packing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is a known fulfilment state.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusPacking, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only fulfilment flow. Cancellation
// is allowed from any state before delivery; delivered and cancelled are
// terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case OrderStatusPlaced:
		return next == OrderStatusPacking || next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusPacking:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	default:
		return false
	}
}

// OrderItem is a priced snapshot of a product at order time.
type OrderItem struct {
	ProductID  string
	Title      string
	Quantity   int64
	PriceCents int64
	Image      string
}

// Order is the immutable record of a checkout. Items and AmountCents are
// frozen at creation; only Payment and Status change afterwards.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	AmountCents     int64
	Address         Address
	PaymentMethod   PaymentMethod
	Payment         bool
	GatewaySession  string
	Status          OrderStatus
	Date            time.Time
	StatusUpdatedAt time.Time
}
