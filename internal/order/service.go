package order

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ecommerce-suite/orders-service/internal/catalog"
	"github.com/ecommerce-suite/orders-service/internal/payment"
)

// Service orchestrates the order lifecycle across the catalog, the payment
// provider and the persistence gateway. It holds no state of its own.
type Service interface {
	Create(ctx context.Context, items []CreateItem) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, filter Filter) (*Page, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) (*Order, error)
	MarkPaid(ctx context.Context, confirmation payment.Confirmation) (*Order, error)
	CreatePaymentSession(ctx context.Context, id uuid.UUID) (*payment.Session, error)
}

type service struct {
	repo     Repository
	catalog  catalog.Client
	payments payment.Client
	currency string
}

func NewService(repo Repository, catalogClient catalog.Client, paymentClient payment.Client, currency string) Service {
	return &service{
		repo:     repo,
		catalog:  catalogClient,
		payments: paymentClient,
		currency: currency,
	}
}

// Create validates the requested products against the catalog in a single
// batched call, snapshots their prices into the order items, and persists
// the order atomically. Nothing is written unless validation succeeded.
func (s *service) Create(ctx context.Context, items []CreateItem) (*Order, error) {
	if len(items) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, ErrValidationFailed
	}
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID == uuid.Nil {
			log.Warn().Stringer("product_id", item.ProductID).Int("quantity", item.Quantity).
				Msg("service: invalid order item in create request")
			return nil, ErrValidationFailed
		}
	}

	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.catalog.Validate(ctx, ids)
	if err != nil {
		log.Error().Err(err).Int("product_count", len(ids)).Msg("service: product validation failed")
		return nil, ErrValidationFailed
	}

	byID := make(map[uuid.UUID]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	order := &Order{
		Status: StatusPending,
		Items:  make([]OrderItem, 0, len(items)),
	}
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			log.Error().Stringer("product_id", item.ProductID).Msg("service: validated set is missing a requested product")
			return nil, ErrValidationFailed
		}
		order.Items = append(order.Items, OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		order.TotalAmount += product.Price * float64(item.Quantity)
		order.TotalItems += item.Quantity
	}

	if err := s.repo.Create(ctx, order); err != nil {
		log.Error().Err(err).Msg("service: failed to persist order")
		return nil, ErrPersistenceFailed
	}

	for i := range order.Items {
		order.Items[i].Name = byID[order.Items[i].ProductID].Name
	}

	log.Info().Stringer("order_id", order.ID).Float64("total_amount", order.TotalAmount).
		Int("total_items", order.TotalItems).Msg("service: order created")

	return order, nil
}

// GetByID returns the stored order enriched with current display names. A
// name lookup miss never fails the read: price and quantity are order-owned
// data and are returned regardless of what the catalog answers today.
func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order")
		return nil, ErrPersistenceFailed
	}

	s.enrichNames(ctx, order)

	return order, nil
}

func (s *service) enrichNames(ctx context.Context, order *Order) {
	if len(order.Items) == 0 {
		return
	}

	seen := make(map[uuid.UUID]bool, len(order.Items))
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	names, err := s.catalog.Names(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", order.ID).
			Msg("service: product name lookup failed, returning order without some names")
	}
	for i := range order.Items {
		order.Items[i].Name = names[order.Items[i].ProductID]
	}
}

func (s *service) List(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, ErrPersistenceFailed
	}

	return &Page{
		Data: orders,
		Meta: PageMeta{
			Total:    total,
			Page:     filter.Page,
			LastPage: (total + filter.Limit - 1) / filter.Limit,
		},
	}, nil
}

// ChangeStatus is an idempotent single-field update: when the order already
// has newStatus the stored row is returned with no write performed. The
// equality check reads the bare stored status, no catalog round-trip.
func (s *service) ChangeStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) (*Order, error) {
	order, changed, err := s.repo.UpdateStatus(ctx, id, newStatus)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", newStatus).
			Msg("service: failed to update order status")
		return nil, ErrPersistenceFailed
	}

	if !changed {
		log.Info().Stringer("order_id", id).Stringer("status", newStatus).
			Msg("service: order status unchanged, no update needed")
		return order, nil
	}

	log.Info().Stringer("order_id", id).Stringer("new_status", newStatus).Msg("service: order status updated")

	return order, nil
}

// MarkPaid reacts to a payment confirmation: it flips the order to paid and
// creates the receipt in one transaction. Redelivered confirmations are
// absorbed silently, which the at-least-once payment collaborator requires.
func (s *service) MarkPaid(ctx context.Context, confirmation payment.Confirmation) (*Order, error) {
	order, err := s.repo.MarkPaid(ctx, confirmation.OrderID, confirmation.ChargeReference, confirmation.ReceiptURL)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", confirmation.OrderID).
			Msg("service: failed to process payment confirmation")
		return nil, ErrPaymentFailed
	}

	log.Info().Stringer("order_id", order.ID).Str("charge_reference", confirmation.ChargeReference).
		Msg("service: order marked paid")

	return order, nil
}

// CreatePaymentSession requests a session from the payment provider for an
// already persisted order. It never mutates order state; the confirmation,
// not the session, is what transitions the order. The call is not retried
// here because duplicate invocations create duplicate provider sessions.
func (s *service) CreatePaymentSession(ctx context.Context, id uuid.UUID) (*payment.Session, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req := payment.SessionRequest{
		OrderID:  order.ID,
		Currency: s.currency,
		Items:    make([]payment.LineItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, payment.LineItem{
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	session, err := s.payments.CreateSession(ctx, req)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: payment session creation failed")
		return nil, ErrPaymentFailed
	}

	log.Info().Stringer("order_id", id).Str("session_id", session.ID).Msg("service: payment session created")

	return session, nil
}
