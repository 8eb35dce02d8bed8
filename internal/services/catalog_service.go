package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/platform/requestctx"
	"github.com/threadline/api/internal/platform/storage"
	"github.com/threadline/api/internal/repositories"
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("catalog service: product not found")

// ErrProductExists indicates a product with the same title already exists.
var ErrProductExists = errors.New("catalog service: product already exists")

// ErrCatalogUnavailable indicates the catalog service cannot fulfil the request due to backend issues.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the repository, image store, and sanitiser for
// catalog operations.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Images      storage.ImageStore
	Sanitizer   *bluemonday.Policy
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products  repositories.ProductRepository
	images    storage.ImageStore
	sanitizer *bluemonday.Policy
	now       func() time.Time
	newID     func() string
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.UGCPolicy()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &catalogService{
		products:  deps.Products,
		images:    deps.Images,
		sanitizer: sanitizer,
		now:       func() time.Time { return clock().UTC() },
		newID:     newID,
	}, nil
}

// Add creates a catalog product from the admin payload, rejecting duplicate
// titles and normalising the free-text price and rating fields.
func (s *catalogService) Add(ctx context.Context, cmd AddProductCommand) (Product, error) {
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Product{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		return Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	priceCents, err := ParsePriceCents(cmd.Price)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	var rating *float64
	if strings.TrimSpace(cmd.Rating) != "" {
		value, err := ParseRating(cmd.Rating)
		if err != nil {
			return Product{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		rating = &value
	}

	if _, err := s.products.FindByTitle(ctx, title); err == nil {
		return Product{}, ErrProductExists
	} else if !repositories.IsNotFound(err) {
		return Product{}, translateCatalogRepoError(err)
	}

	now := s.now()
	product := domain.Product{
		ID:          s.newID(),
		Title:       title,
		PriceCents:  priceCents,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Rating:      rating,
		ImageLink:   strings.TrimSpace(cmd.ImageLink),
		ProductLink: strings.TrimSpace(cmd.ProductLink),
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}

	if cmd.Image != nil {
		stored, err := s.storeImage(ctx, product.ID, cmd.Image)
		if err != nil {
			return Product{}, err
		}
		product.Image = stored
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, translateCatalogRepoError(err)
	}
	return product, nil
}

// Get fetches a single product.
func (s *catalogService) Get(ctx context.Context, productID string) (Product, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		return Product{}, translateCatalogRepoError(err)
	}
	return product, nil
}

// List returns a page of the catalog, newest first.
func (s *catalogService) List(ctx context.Context, filter ListProductsFilter) (ProductListing, error) {
	startAfter, err := decodeTimeCursor(filter.PageToken)
	if err != nil {
		return ProductListing{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:   strings.TrimSpace(filter.Category),
		PageSize:   filter.PageSize,
		StartAfter: startAfter,
	})
	if err != nil {
		return ProductListing{}, translateCatalogRepoError(err)
	}

	listing := ProductListing{Products: page.Products}
	if len(page.NextCursor) > 0 {
		token, err := encodeTimeCursor(page.NextCursor)
		if err != nil {
			return ProductListing{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		listing.NextPageToken = token
	}
	return listing, nil
}

// Update applies a partial admin update to an existing product.
func (s *catalogService) Update(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	pid := strings.TrimSpace(cmd.ProductID)
	if pid == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		return Product{}, translateCatalogRepoError(err)
	}

	if cmd.Title != nil {
		title := strings.TrimSpace(*cmd.Title)
		if title == "" {
			return Product{}, fmt.Errorf("%w: title must not be empty", ErrCatalogInvalidInput)
		}
		if title != product.Title {
			if existing, err := s.products.FindByTitle(ctx, title); err == nil && existing.ID != pid {
				return Product{}, ErrProductExists
			} else if err != nil && !repositories.IsNotFound(err) {
				return Product{}, translateCatalogRepoError(err)
			}
		}
		product.Title = title
	}
	if cmd.Price != nil {
		priceCents, err := ParsePriceCents(*cmd.Price)
		if err != nil {
			return Product{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		product.PriceCents = priceCents
	}
	if cmd.Description != nil {
		product.Description = s.sanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Rating != nil {
		if strings.TrimSpace(*cmd.Rating) == "" {
			product.Rating = nil
		} else {
			value, err := ParseRating(*cmd.Rating)
			if err != nil {
				return Product{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
			}
			product.Rating = &value
		}
	}
	if cmd.Category != nil {
		category := strings.TrimSpace(*cmd.Category)
		if category == "" {
			return Product{}, fmt.Errorf("%w: category must not be empty", ErrCatalogInvalidInput)
		}
		product.Category = category
	}
	if cmd.ImageLink != nil {
		product.ImageLink = strings.TrimSpace(*cmd.ImageLink)
	}
	if cmd.ProductLink != nil {
		product.ProductLink = strings.TrimSpace(*cmd.ProductLink)
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Image != nil {
		stored, err := s.storeImage(ctx, product.ID, cmd.Image)
		if err != nil {
			return Product{}, err
		}
		if product.Image != "" && product.Image != stored {
			s.removeImage(ctx, product.Image)
		}
		product.Image = stored
	}

	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, translateCatalogRepoError(err)
	}
	return product, nil
}

// Remove deletes the product and its stored image.
func (s *catalogService) Remove(ctx context.Context, productID string) error {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		return translateCatalogRepoError(err)
	}
	if err := s.products.Delete(ctx, pid); err != nil {
		return translateCatalogRepoError(err)
	}
	if product.Image != "" {
		s.removeImage(ctx, product.Image)
	}
	return nil
}

func (s *catalogService) storeImage(ctx context.Context, productID string, upload *ImageUpload) (string, error) {
	if s.images == nil {
		return "", fmt.Errorf("%w: image uploads are not configured", ErrCatalogUnavailable)
	}
	objectPath, err := storage.BuildProductImagePath(productID, upload.FileName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	stored, err := s.images.Save(ctx, objectPath, upload.ContentType, upload.Reader)
	if err != nil {
		return "", fmt.Errorf("%w: store image: %v", ErrCatalogUnavailable, err)
	}
	return stored, nil
}

// removeImage is best effort; a stale object is logged, not surfaced.
func (s *catalogService) removeImage(ctx context.Context, objectPath string) {
	if s.images == nil {
		return
	}
	if err := s.images.Remove(ctx, objectPath); err != nil {
		requestctx.Logger(ctx).Warn("failed to remove product image",
			zap.String("objectPath", objectPath),
			zap.Error(err),
		)
	}
}

func translateCatalogRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrProductNotFound
	case repositories.IsConflict(err):
		return ErrProductExists
	default:
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
}
