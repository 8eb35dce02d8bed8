// Package payments adapts the hosted-checkout gateway behind a small
// provider contract so the order service never touches PSP types directly.
package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states reported by the gateway.
type Status string

const (
	// StatusPending indicates the shopper has not completed checkout yet.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the session as fully paid.
	StatusPaid Status = "paid"
	// StatusExpired indicates the session lapsed before payment.
	StatusExpired Status = "expired"
)

// ErrInvalidSignature is returned when a gateway event fails verification.
var ErrInvalidSignature = errors.New("payments: invalid event signature")

// CheckoutItem is a single priced line presented on the hosted checkout page.
type CheckoutItem struct {
	Name        string
	AmountCents int64
	Quantity    int64
}

// CheckoutRequest captures the payload required to open a checkout session.
type CheckoutRequest struct {
	OrderID    string
	UserID     string
	Currency   string
	SuccessURL string
	CancelURL  string
	Items      []CheckoutItem
	Metadata   map[string]string
}

// CheckoutSession is the gateway session handed back to the client for
// redirection.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionDetails normalises the gateway's view of a session for settlement.
type SessionDetails struct {
	ID          string
	OrderID     string
	Status      Status
	AmountCents int64
	Currency    string
}

// EventType identifies the gateway notifications the API reacts to.
type EventType string

const (
	// EventSessionCompleted fires when the shopper finished paying.
	EventSessionCompleted EventType = "checkout.session.completed"
	// EventSessionExpired fires when the session lapsed unpaid.
	EventSessionExpired EventType = "checkout.session.expired"
)

// GatewayEvent is a verified webhook notification.
type GatewayEvent struct {
	Type    EventType
	Session SessionDetails
}

// Provider defines the contract the gateway adapter implements.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	LookupSession(ctx context.Context, sessionID string) (SessionDetails, error)
	VerifyEvent(payload []byte, signature string) (GatewayEvent, error)
}
