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

const ordersCollection = "orders"

type orderItemDocument struct {
	ProductID  string `firestore:"productId"`
	Title      string `firestore:"title"`
	Quantity   int64  `firestore:"quantity"`
	PriceCents int64  `firestore:"priceCents"`
	Image      string `firestore:"image"`
}

type orderAddressDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	State     string `firestore:"state"`
	ZipCode   string `firestore:"zipCode"`
	Country   string `firestore:"country"`
	Phone     string `firestore:"phone"`
}

type orderDocument struct {
	UserID          string               `firestore:"userId"`
	Items           []orderItemDocument  `firestore:"items"`
	AmountCents     int64                `firestore:"amountCents"`
	Address         orderAddressDocument `firestore:"address"`
	PaymentMethod   string               `firestore:"paymentMethod"`
	Payment         bool                 `firestore:"payment"`
	GatewaySession  string               `firestore:"gatewaySession,omitempty"`
	Status          string               `firestore:"status"`
	Date            time.Time            `firestore:"date"`
	StatusUpdatedAt time.Time            `firestore:"statusUpdatedAt"`
}

// OrderRepository stores order snapshots in the orders collection.
type OrderRepository struct {
	base *fsplatform.BaseRepository[orderDocument]
}

// NewOrderRepository constructs an OrderRepository bound to the provider.
func NewOrderRepository(provider *fsplatform.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: provider is required")
	}
	return &OrderRepository{
		base: fsplatform.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert creates the order document, failing on an existing ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.base.Create(ctx, order.ID, encodeOrder(order))
	return err
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("date", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// List returns a page of all orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("date", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(filter.StartAfter) > 0 {
			q = q.StartAfter(filter.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	page := repositories.OrderPage{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Orders = append(page.Orders, decodeOrder(doc.ID, doc.Data))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		page.NextCursor = []any{last.Data.Date, last.ID}
	}
	return page, nil
}

// SetGatewaySession records the checkout session opened for the order.
func (r *OrderRepository) SetGatewaySession(ctx context.Context, orderID, sessionID string) error {
	_, err := r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "gatewaySession", Value: sessionID},
	})
	return err
}

// SetPayment flips the payment flag on an existing order.
func (r *OrderRepository) SetPayment(ctx context.Context, orderID string, paid bool) error {
	_, err := r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "payment", Value: paid},
	})
	return err
}

// SetStatus records a fulfilment status transition.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	_, err := r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "statusUpdatedAt", Value: at},
	})
	return err
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:  item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			Image:      item.Image,
		})
	}
	return orderDocument{
		UserID:      order.UserID,
		Items:       items,
		AmountCents: order.AmountCents,
		Address: orderAddressDocument{
			FirstName: order.Address.FirstName,
			LastName:  order.Address.LastName,
			Email:     order.Address.Email,
			Street:    order.Address.Street,
			City:      order.Address.City,
			State:     order.Address.State,
			ZipCode:   order.Address.ZipCode,
			Country:   order.Address.Country,
			Phone:     order.Address.Phone,
		},
		PaymentMethod:   string(order.PaymentMethod),
		Payment:         order.Payment,
		GatewaySession:  order.GatewaySession,
		Status:          string(order.Status),
		Date:            order.Date,
		StatusUpdatedAt: order.StatusUpdatedAt,
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID:  item.ProductID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			Image:      item.Image,
		})
	}
	return domain.Order{
		ID:          id,
		UserID:      doc.UserID,
		Items:       items,
		AmountCents: doc.AmountCents,
		Address: domain.Address{
			FirstName: doc.Address.FirstName,
			LastName:  doc.Address.LastName,
			Email:     doc.Address.Email,
			Street:    doc.Address.Street,
			City:      doc.Address.City,
			State:     doc.Address.State,
			ZipCode:   doc.Address.ZipCode,
			Country:   doc.Address.Country,
			Phone:     doc.Address.Phone,
		},
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		Payment:         doc.Payment,
		GatewaySession:  doc.GatewaySession,
		Status:          domain.OrderStatus(doc.Status),
		Date:            doc.Date,
		StatusUpdatedAt: doc.StatusUpdatedAt,
	}
}
