package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/platform/requestctx"
	"github.com/threadline/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the requested cart or cart line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartProductNotFound indicates the referenced product is not in the catalog.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrInsufficientStock indicates the requested quantity exceeds the tracked stock.
var ErrInsufficientStock = errors.New("cart service: insufficient stock")

// ErrCartConflict indicates the cart was modified concurrently.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// AddItem merges quantity into the user's cart line for the product,
// creating the cart lazily.
func (s *cartService) AddItem(ctx context.Context, userID, productID string, quantity int64) (CartView, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return CartView{}, fmt.Errorf("%w: user and product are required", ErrCartInvalidInput)
	}
	if quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be a positive integer", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CartView{}, ErrCartProductNotFound
		}
		return CartView{}, translateCartRepoError(err)
	}

	cart, expected, err := s.loadOrCreate(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	if idx := cart.Line(pid); idx >= 0 {
		next := cart.Items[idx].Quantity + quantity
		if product.Stock > 0 && next > product.Stock {
			return CartView{}, fmt.Errorf("%w: only %d in stock", ErrInsufficientStock, product.Stock)
		}
		cart.Items[idx].Quantity = next
	} else {
		if product.Stock > 0 && quantity > product.Stock {
			return CartView{}, fmt.Errorf("%w: only %d in stock", ErrInsufficientStock, product.Stock)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: pid,
			Quantity:  quantity,
			AddedAt:   now,
		})
	}
	cart.LastModified = now

	if err := s.carts.Save(ctx, cart, expected); err != nil {
		return CartView{}, translateCartRepoError(err)
	}
	return s.view(ctx, cart)
}

// GetCart returns the denormalised cart, or an empty shape when none exists.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CartView{UserID: uid, Lines: []CartLine{}}, nil
		}
		return CartView{}, translateCartRepoError(err)
	}
	return s.view(ctx, cart)
}

// UpdateQuantity sets the line quantity. Zero removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int64) (CartView, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return CartView{}, fmt.Errorf("%w: user and product are required", ErrCartInvalidInput)
	}
	if quantity < 0 {
		return CartView{}, fmt.Errorf("%w: quantity must not be negative", ErrCartInvalidInput)
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, uid, pid)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return CartView{}, translateCartRepoError(err)
	}
	idx := cart.Line(pid)
	if idx < 0 {
		return CartView{}, fmt.Errorf("%w: product not in cart", ErrCartNotFound)
	}

	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CartView{}, ErrCartProductNotFound
		}
		return CartView{}, translateCartRepoError(err)
	}
	if product.Stock > 0 && quantity > product.Stock {
		return CartView{}, fmt.Errorf("%w: only %d in stock", ErrInsufficientStock, product.Stock)
	}

	expected := cart.LastModified
	cart.Items[idx].Quantity = quantity
	cart.LastModified = s.now()

	if err := s.carts.Save(ctx, cart, &expected); err != nil {
		return CartView{}, translateCartRepoError(err)
	}
	return s.view(ctx, cart)
}

// RemoveItem drops the product line. Removing an absent line succeeds.
func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return CartView{}, fmt.Errorf("%w: user and product are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return CartView{}, translateCartRepoError(err)
	}
	idx := cart.Line(pid)
	if idx < 0 {
		return s.view(ctx, cart)
	}

	expected := cart.LastModified
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.LastModified = s.now()

	if err := s.carts.Save(ctx, cart, &expected); err != nil {
		return CartView{}, translateCartRepoError(err)
	}
	return s.view(ctx, cart)
}

// Clear deletes the cart aggregate.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}
	if err := s.carts.Delete(ctx, uid); err != nil {
		return translateCartRepoError(err)
	}
	return nil
}

// ItemCount returns the total quantity across all lines, zero when no cart exists.
func (s *cartService) ItemCount(ctx context.Context, userID string) (int64, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return 0, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return 0, nil
		}
		return 0, translateCartRepoError(err)
	}
	return cart.TotalQuantity(), nil
}

func (s *cartService) loadOrCreate(ctx context.Context, userID string) (domain.Cart, *time.Time, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Cart{UserID: userID, CreatedAt: s.now()}, nil, nil
		}
		return domain.Cart{}, nil, translateCartRepoError(err)
	}
	expected := cart.LastModified
	return cart, &expected, nil
}

// view joins cart lines against the live catalog. Lines whose product no
// longer exists are skipped rather than failing the read.
func (s *cartService) view(ctx context.Context, cart domain.Cart) (CartView, error) {
	result := CartView{
		UserID:       cart.UserID,
		Lines:        make([]CartLine, 0, len(cart.Items)),
		LastModified: cart.LastModified,
	}
	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if repositories.IsNotFound(err) {
				requestctx.Logger(ctx).Warn("cart line references missing product",
					zap.String("userId", cart.UserID),
					zap.String("productId", item.ProductID),
				)
				continue
			}
			return CartView{}, translateCartRepoError(err)
		}
		result.Lines = append(result.Lines, CartLine{
			ProductID:     item.ProductID,
			Title:         product.Title,
			PriceCents:    product.PriceCents,
			Image:         product.Image,
			Quantity:      item.Quantity,
			SubtotalCents: product.PriceCents * item.Quantity,
		})
		result.TotalItems += item.Quantity
		result.TotalAmountCents += product.PriceCents * item.Quantity
	}
	return result, nil
}

func translateCartRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrCartNotFound
	case repositories.IsConflict(err):
		return ErrCartConflict
	default:
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
}
