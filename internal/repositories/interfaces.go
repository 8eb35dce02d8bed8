// Package repositories defines the persistence contracts consumed by the
// service layer. Implementations live in subpackages keyed by backend.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/threadline/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err categorises as a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// ProductListFilter narrows and pages catalog listings.
type ProductListFilter struct {
	Category   string
	PageSize   int
	StartAfter []any
}

// ProductPage is a single page of catalog results plus the cursor to fetch
// the next page. An empty NextCursor means the listing is exhausted.
type ProductPage struct {
	Products   []domain.Product
	NextCursor []any
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByTitle(ctx context.Context, title string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (ProductPage, error)
}

// UserRepository persists shopper accounts.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

// CartRepository persists the per-user cart aggregate. Save enforces an
// optimistic-concurrency check: when expectedModified is non-nil the write
// fails with a conflict if the stored document changed since that instant.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedModified *time.Time) error
	Delete(ctx context.Context, userID string) error
}

// OrderListFilter pages the admin order listing.
type OrderListFilter struct {
	PageSize   int
	StartAfter []any
}

// OrderPage is a single page of orders plus the next cursor.
type OrderPage struct {
	Orders     []domain.Order
	NextCursor []any
}

// OrderRepository persists order snapshots and their mutable payment and
// fulfilment state.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	SetGatewaySession(ctx context.Context, orderID, sessionID string) error
	SetPayment(ctx context.Context, orderID string, paid bool) error
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error
}
