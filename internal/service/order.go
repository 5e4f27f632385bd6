package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/waveforge/storefront/internal/domain"
	"github.com/waveforge/storefront/internal/events"
	"github.com/waveforge/storefront/internal/telemetry"
)

// maxUpdateRetries bounds optimistic-concurrency retries on a single
// order mutation. Each retry re-reads the order and reapplies the change,
// so concurrent transitions on the same order serialize instead of
// writing from stale state.
const maxUpdateRetries = 3

// OrderService provides business logic for the order lifecycle.
type OrderService interface {
	// PlaceOrder validates and persists a new order in a single step, then
	// publishes an order-placed event (best-effort).
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*domain.Order, error)

	// GetOrder retrieves a single order by ID.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListUserOrders returns a user's orders, newest first.
	ListUserOrders(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error)

	// ListOrdersByStatus returns orders in the given fulfillment status, newest first.
	ListOrdersByStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error)

	// ListPendingOrders returns orders awaiting processing, newest first.
	ListPendingOrders(ctx context.Context, page domain.Page) ([]domain.Order, error)

	// ListOrdersByPaymentStatus returns orders in the given payment status, newest first.
	ListOrdersByPaymentStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error)

	// UpdateStatus moves the fulfillment status machine. No notification is
	// sent for fulfillment transitions.
	UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error)

	// ConfirmPayment marks the order paid and publishes a payment-confirmed
	// event. Repeated confirmation is a no-op and does not re-publish.
	ConfirmPayment(ctx context.Context, orderID, paymentIntentID string) (*domain.Order, error)

	// FailPayment marks the order's payment as failed.
	FailPayment(ctx context.Context, orderID string) (*domain.Order, error)

	// SetTrackingNumber sets the carrier tracking reference.
	SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) (*domain.Order, error)

	// SetNotes sets the bounded free-form notes field.
	SetNotes(ctx context.Context, orderID, notes string) (*domain.Order, error)
}

// PlaceOrderParams carries the complete checkout payload. Orders are
// created atomically; partial orders do not exist.
type PlaceOrderParams struct {
	UserID          string
	CustomerEmail   string
	Items           []ItemParams
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
}

// ItemParams describes one line item with its price snapshotted at order
// time.
type ItemParams struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int32
	Icon           string
}

// Config holds storefront policy applied by the order service.
type Config struct {
	// HomeCountry is the default shipping country.
	HomeCountry string

	// MaxNotesLen bounds the order notes field. Zero applies the domain default.
	MaxNotesLen int
}

type orderService struct {
	repo      domain.OrderRepository
	publisher events.Publisher
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
	cfg       Config
}

// NewOrderService creates a new OrderService instance. The publisher and
// metrics are optional collaborators; pass nil to disable them.
func NewOrderService(repo domain.OrderRepository, publisher events.Publisher, metrics *telemetry.BusinessMetrics, logger *slog.Logger, cfg Config) OrderService {
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &orderService{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// PlaceOrder validates and persists a new order.
func (s *orderService) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*domain.Order, error) {
	const op = "order.place"

	userID, err := parseID(op, "userId", params.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, len(params.Items))
	for i, item := range params.Items {
		productID, err := parseID(op, fmt.Sprintf("items[%d].productId", i), item.ProductID)
		if err != nil {
			return nil, err
		}
		items[i] = domain.OrderItem{
			ProductID:      productID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			Icon:           item.Icon,
		}
	}

	order, err := domain.NewOrder(domain.NewOrderParams{
		UserID:          userID,
		CustomerEmail:   params.CustomerEmail,
		Items:           items,
		ShippingAddress: params.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(params.PaymentMethod),
		HomeCountry:     s.cfg.HomeCountry,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersPlaced.Inc()
		s.metrics.OrderValue.Observe(float64(order.TotalCents))
		s.metrics.OrderItemCount.Observe(float64(order.ItemCount()))
	}

	s.publishOrderPlaced(ctx, order)

	return order, nil
}

// GetOrder retrieves a single order by ID.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	id, err := parseID("order.get", "orderId", orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ListUserOrders returns a user's orders, newest first.
func (s *orderService) ListUserOrders(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error) {
	id, err := parseID("order.list_by_user", "userId", userID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUser(ctx, id, page)
}

// ListOrdersByStatus returns orders in the given fulfillment status.
func (s *orderService) ListOrdersByStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error) {
	st := domain.OrderStatus(status)
	if !st.Valid() {
		return nil, domain.NewValidationError("order.list_by_status", "status",
			fmt.Sprintf("unknown order status: %q", status))
	}
	return s.repo.FindByStatus(ctx, st, page)
}

// ListPendingOrders returns orders awaiting processing.
func (s *orderService) ListPendingOrders(ctx context.Context, page domain.Page) ([]domain.Order, error) {
	return s.repo.FindPending(ctx, page)
}

// ListOrdersByPaymentStatus returns orders in the given payment status.
func (s *orderService) ListOrdersByPaymentStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error) {
	st := domain.PaymentStatus(status)
	if !st.Valid() {
		return nil, domain.NewValidationError("order.list_by_payment_status", "paymentStatus",
			fmt.Sprintf("unknown payment status: %q", status))
	}
	return s.repo.FindByPaymentStatus(ctx, st, page)
}

// UpdateStatus moves the fulfillment status machine.
func (s *orderService) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	target := domain.OrderStatus(status)

	order, _, err := s.mutate(ctx, "order.update_status", orderID, func(o *domain.Order) (bool, error) {
		from := o.Status
		if err := o.Transition(target); err != nil {
			return false, err
		}
		if s.metrics != nil {
			s.metrics.StatusTransition.WithLabelValues(string(from), string(target)).Inc()
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment marks the order paid. The event publish happens outside
// the write: a notification failure is logged and reported via metrics
// but never rolls back the payment-status change.
func (s *orderService) ConfirmPayment(ctx context.Context, orderID, paymentIntentID string) (*domain.Order, error) {
	order, changed, err := s.mutate(ctx, "order.confirm_payment", orderID, func(o *domain.Order) (bool, error) {
		return o.MarkPaid(paymentIntentID)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if s.metrics != nil {
			s.metrics.PaymentsConfirmed.Inc()
		}
		s.publishPaymentConfirmed(ctx, order)
	}

	return order, nil
}

// FailPayment marks the order's payment as failed.
func (s *orderService) FailPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	order, changed, err := s.mutate(ctx, "order.fail_payment", orderID, func(o *domain.Order) (bool, error) {
		return o.MarkFailed()
	})
	if err != nil {
		return nil, err
	}

	if changed && s.metrics != nil {
		s.metrics.PaymentsFailed.Inc()
	}

	return order, nil
}

// SetTrackingNumber sets the carrier tracking reference.
func (s *orderService) SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, "order.set_tracking", orderID, func(o *domain.Order) (bool, error) {
		o.SetTrackingNumber(trackingNumber)
		return true, nil
	})
	return order, err
}

// SetNotes sets the bounded free-form notes field.
func (s *orderService) SetNotes(ctx context.Context, orderID, notes string) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, "order.set_notes", orderID, func(o *domain.Order) (bool, error) {
		if err := o.SetNotes(notes, s.cfg.MaxNotesLen); err != nil {
			return false, err
		}
		return true, nil
	})
	return order, err
}

// mutate runs a read-modify-write cycle on one order with optimistic
// concurrency. When the repository reports a concurrent modification, the
// order is re-read and the change reapplied, up to maxUpdateRetries.
// The mutation function returns whether the order actually changed;
// unchanged orders are not written.
func (s *orderService) mutate(ctx context.Context, op, orderID string, fn func(*domain.Order) (bool, error)) (*domain.Order, bool, error) {
	id, err := parseID(op, "orderId", orderID)
	if err != nil {
		return nil, false, err
	}

	for attempt := 1; ; attempt++ {
		order, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}

		changed, err := fn(order)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return order, false, nil
		}

		err = s.repo.Update(ctx, order)
		if err == nil {
			return order, true, nil
		}
		if errors.Is(err, domain.ErrOrderModified) && attempt < maxUpdateRetries {
			s.logger.Debug("retrying order mutation after concurrent write",
				"op", op, "order_id", orderID, "attempt", attempt)
			continue
		}
		return nil, false, err
	}
}

func (s *orderService) publishOrderPlaced(ctx context.Context, order *domain.Order) {
	event := events.OrderPlaced{
		EventID:       events.NewEventID(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		CustomerName:  order.ShippingAddress.FullName,
		CustomerEmail: order.CustomerEmail,
		Items:         eventItems(order.Items),
		TotalCents:    order.TotalCents,
		PaymentMethod: string(order.PaymentMethod),
		PlacedAt:      order.CreatedAt,
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.recordPublishError(events.SubjectOrderPlaced, order.ID, err)
		return
	}
	s.recordPublish(events.SubjectOrderPlaced)
}

func (s *orderService) publishPaymentConfirmed(ctx context.Context, order *domain.Order) {
	event := events.PaymentConfirmed{
		EventID:         events.NewEventID(),
		OrderID:         order.ID,
		UserID:          order.UserID,
		CustomerName:    order.ShippingAddress.FullName,
		CustomerEmail:   order.CustomerEmail,
		TotalCents:      order.TotalCents,
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: order.PaymentIntentID,
		ConfirmedAt:     time.Now().UTC(),
	}

	if err := s.publisher.PublishPaymentConfirmed(ctx, event); err != nil {
		s.recordPublishError(events.SubjectPaymentConfirmed, order.ID, err)
		return
	}
	s.recordPublish(events.SubjectPaymentConfirmed)
}

func (s *orderService) recordPublish(subject string) {
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(subject).Inc()
	}
}

func (s *orderService) recordPublishError(subject string, orderID uuid.UUID, err error) {
	// Best-effort: the order state change is the durable source of truth.
	s.logger.Warn("failed to publish lifecycle event",
		"subject", subject, "order_id", orderID, "error", err)
	if s.metrics != nil {
		s.metrics.EventPublishErrors.WithLabelValues(subject).Inc()
	}
}

func eventItems(items []domain.OrderItem) []events.LineItem {
	out := make([]events.LineItem, len(items))
	for i, item := range items {
		out[i] = events.LineItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
		}
	}
	return out
}

func parseID(op, field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(op, field, fmt.Sprintf("invalid ID: %q", value))
	}
	return id, nil
}
