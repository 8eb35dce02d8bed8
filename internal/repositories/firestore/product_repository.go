// Package firestore provides the Firestore backed implementations of the
// repository contracts.
package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/threadline/api/internal/domain"
	fsplatform "github.com/threadline/api/internal/platform/firestore"
	"github.com/threadline/api/internal/repositories"
)

const (
	productsCollection      = "products"
	productTitlesCollection = "productTitles"
)

type productDocument struct {
	Title       string    `firestore:"title"`
	PriceCents  int64     `firestore:"priceCents"`
	Description string    `firestore:"description"`
	Rating      *float64  `firestore:"rating,omitempty"`
	Image       string    `firestore:"image"`
	ImageLink   string    `firestore:"imageLink"`
	ProductLink string    `firestore:"productLink"`
	Category    string    `firestore:"category"`
	Stock       int64     `firestore:"stock"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// titleClaimDocument reserves a product title, keyed by the title itself, so
// that creating it doubles as the duplicate-title check.
type titleClaimDocument struct {
	ProductID string    `firestore:"productId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// ProductRepository stores catalog products in the products collection, with
// a title-claim collection enforcing unique titles.
type ProductRepository struct {
	base   *fsplatform.BaseRepository[productDocument]
	titles *fsplatform.BaseRepository[titleClaimDocument]
}

// NewProductRepository constructs a ProductRepository bound to the provider.
func NewProductRepository(provider *fsplatform.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: provider is required")
	}
	return &ProductRepository{
		base:   fsplatform.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		titles: fsplatform.NewBaseRepository[titleClaimDocument](provider, productTitlesCollection, nil, nil),
	}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// Insert creates the product. The title claim is written first so two
// concurrent inserts of the same title race on a single document ID and only
// one wins; the loser surfaces a conflict instead of a duplicate listing.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	claimID := claimDocID(product.Title)
	if _, err := r.titles.Create(ctx, claimID, titleClaimDocument{
		ProductID: product.ID,
		CreatedAt: product.CreatedAt,
	}); err != nil {
		return err
	}

	if _, err := r.base.Create(ctx, product.ID, encodeProduct(product)); err != nil {
		// Release the claim so a failed insert does not burn the title.
		_ = r.titles.Delete(ctx, claimID)
		return err
	}
	return nil
}

// Update overwrites the product document. A title change claims the new
// title before the write and releases the old one after, so renames keep the
// uniqueness guarantee.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	existing, err := r.base.Get(ctx, product.ID)
	if err != nil {
		return err
	}

	oldClaim := claimDocID(existing.Data.Title)
	newClaim := claimDocID(product.Title)
	renamed := oldClaim != newClaim
	if renamed {
		if _, err := r.titles.Create(ctx, newClaim, titleClaimDocument{
			ProductID: product.ID,
			CreatedAt: product.UpdatedAt,
		}); err != nil {
			return err
		}
	}

	if _, err := r.base.Set(ctx, product.ID, encodeProduct(product)); err != nil {
		if renamed {
			_ = r.titles.Delete(ctx, newClaim)
		}
		return err
	}
	if renamed {
		_ = r.titles.Delete(ctx, oldClaim)
	}
	return nil
}

// Delete removes the product document, failing when it does not exist, and
// frees its title for reuse.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	existing, err := r.base.Get(ctx, productID)
	if err != nil {
		return err
	}
	if err := r.base.Delete(ctx, productID, firestore.Exists); err != nil {
		return err
	}
	_ = r.titles.Delete(ctx, claimDocID(existing.Data.Title))
	return nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// FindByTitle resolves a product by its exact title. Titles are unique on
// create, so the first match wins.
func (r *ProductRepository) FindByTitle(ctx context.Context, title string) (domain.Product, error) {
	title = strings.TrimSpace(title)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("title", "==", title).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, fsplatform.NewNotFound("products.findbytitle", "product title not found")
	}
	return decodeProduct(docs[0].ID, docs[0].Data), nil
}

// List returns a page of products ordered by newest first, optionally
// narrowed to a category.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (repositories.ProductPage, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(filter.StartAfter) > 0 {
			q = q.StartAfter(filter.StartAfter...)
		}
		// Fetch one extra row to detect whether another page exists.
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.ProductPage{}, err
	}

	page := repositories.ProductPage{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Products = append(page.Products, decodeProduct(doc.ID, doc.Data))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		page.NextCursor = []any{last.Data.CreatedAt, last.ID}
	}
	return page, nil
}

func encodeProduct(product domain.Product) productDocument {
	return productDocument{
		Title:       product.Title,
		PriceCents:  product.PriceCents,
		Description: product.Description,
		Rating:      product.Rating,
		Image:       product.Image,
		ImageLink:   product.ImageLink,
		ProductLink: product.ProductLink,
		Category:    product.Category,
		Stock:       product.Stock,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func decodeProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       doc.Title,
		PriceCents:  doc.PriceCents,
		Description: doc.Description,
		Rating:      doc.Rating,
		Image:       doc.Image,
		ImageLink:   doc.ImageLink,
		ProductLink: doc.ProductLink,
		Category:    doc.Category,
		Stock:       doc.Stock,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
