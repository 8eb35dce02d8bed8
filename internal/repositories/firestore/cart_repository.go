package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/threadline/api/internal/domain"
	fsplatform "github.com/threadline/api/internal/platform/firestore"
	"github.com/threadline/api/internal/repositories"
)

const cartsCollection = "carts"

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int64     `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	Items        []cartItemDocument `firestore:"items"`
	CreatedAt    time.Time          `firestore:"createdAt"`
	LastModified time.Time          `firestore:"lastModified"`
}

// CartRepository stores one cart per user, keyed by the user ID. Writes are
// guarded with Firestore update-time preconditions so concurrent mutations
// surface as conflicts instead of silently losing items.
type CartRepository struct {
	base *fsplatform.BaseRepository[cartDocument]
}

// NewCartRepository constructs a CartRepository bound to the provider.
func NewCartRepository(provider *fsplatform.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository: provider is required")
	}
	return &CartRepository{
		base: fsplatform.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil),
	}, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// Get fetches the cart for a user. LastModified is populated from the
// document's server-side update time so callers can pass it back to Save
// as the concurrency check.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		UserID:       userID,
		CreatedAt:    doc.Data.CreatedAt,
		LastModified: doc.UpdateTime,
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return cart, nil
}

// Save upserts the cart. When expectedModified is set the write only
// succeeds if the document was last updated at exactly that instant;
// otherwise a conflict error is returned.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart, expectedModified *time.Time) error {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}

	if expectedModified == nil {
		_, err := r.base.Set(ctx, cart.UserID, cartDocument{
			Items:        items,
			CreatedAt:    cart.CreatedAt,
			LastModified: cart.LastModified,
		})
		return err
	}

	updates := []firestore.Update{
		{Path: "items", Value: items},
		{Path: "lastModified", Value: cart.LastModified},
	}
	_, err := r.base.Update(ctx, cart.UserID, updates, firestore.LastUpdateTime(*expectedModified))
	return err
}

// Delete removes the cart document, failing when none exists.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	return r.base.Delete(ctx, userID, firestore.Exists)
}
