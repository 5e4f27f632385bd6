package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Order-related domain errors.
var (
	ErrOrderNotFound = &Error{Code: ENOTFOUND, Message: "Order not found"}

	// ErrPaymentIntentInUse indicates the payment intent is already attached
	// to another order. Payment intent IDs are sparse-unique across orders.
	ErrPaymentIntentInUse = &Error{Code: ECONFLICT, Message: "Payment intent already attached to another order"}

	// ErrPaymentIntentMismatch indicates an attempt to confirm payment with a
	// different intent ID than the one already recorded on the order.
	ErrPaymentIntentMismatch = &Error{Code: ECONFLICT, Message: "Payment intent does not match the one recorded on this order"}

	// ErrOrderModified indicates a concurrent write was detected. The order
	// state on the server is newer than the state the caller read. Safe to
	// retry after re-reading.
	ErrOrderModified = &Error{Code: ECONFLICT, Message: "Order was modified concurrently"}
)

// DefaultMaxNotesLen bounds the free-form notes field on an order.
const DefaultMaxNotesLen = 500

// OrderStatus tracks fulfillment progress. It is one dimension of an
// order's state; PaymentStatus is the other. The two do not gate each
// other directly.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further fulfillment transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled:
		return true
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped:
		return false
	}
	return false
}

// CanTransitionTo reports whether the fulfillment machine allows moving
// from s to target. Cancellation is only reachable from pending or
// processing; a shipped or delivered order cannot be cancelled.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return target == OrderStatusProcessing || target == OrderStatusCancelled
	case OrderStatusProcessing:
		return target == OrderStatusShipped || target == OrderStatusCancelled
	case OrderStatusShipped:
		return target == OrderStatusDelivered
	case OrderStatusDelivered, OrderStatusCancelled:
		return false
	}
	return false
}

// PaymentStatus tracks money-received state, independent of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// PaymentMethod identifies how the customer intends to pay.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPaypal PaymentMethod = "paypal"
	PaymentMethodCash   PaymentMethod = "cash"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPaypal, PaymentMethodCash:
		return true
	}
	return false
}

// InvalidTransitionError is returned when a fulfillment status move is not
// in the allowed-transition table. The caller should re-fetch current
// state before retrying.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// InvalidPaymentTransitionError is returned when a payment status move is
// not allowed (paid and failed are terminal).
type InvalidPaymentTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidPaymentTransitionError) Error() string {
	return fmt.Sprintf("invalid payment status transition: %s -> %s", e.From, e.To)
}

// OrderItem is a value type owned exclusively by its order. Name and unit
// price are snapshotted at order time and do not follow later catalog
// changes.
type OrderItem struct {
	ProductID      uuid.UUID
	Name           string
	UnitPriceCents int64
	Quantity       int32
	Icon           string
}

// ShippingAddress is a value type. All fields are trimmed on construction;
// country falls back to the configured home country. No format validation
// is performed beyond trimming.
type ShippingAddress struct {
	FullName   string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

func (a ShippingAddress) normalized(homeCountry string) ShippingAddress {
	out := ShippingAddress{
		FullName:   strings.TrimSpace(a.FullName),
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
	if out.Country == "" {
		out.Country = homeCountry
	}
	return out
}

// Order is the aggregate root for the order lifecycle. All mutation goes
// through methods that enforce the invariants: items non-empty, prices
// non-negative, and TotalCents always equal to the sum of
// item.UnitPriceCents * item.Quantity.
type Order struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// CustomerEmail is snapshotted at checkout so notifications reach the
	// customer without a lookup into the external user subsystem.
	CustomerEmail string

	Items           []OrderItem
	ShippingAddress ShippingAddress
	TotalCents      int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod

	// PaymentIntentID is an optional external payment-processor reference.
	// When set it is unique across orders (sparse-unique, enforced at
	// persistence). Empty means unset.
	PaymentIntentID string

	TrackingNumber string
	Notes          string

	// Version supports optimistic concurrency at the repository boundary.
	// It is never exposed in serialized output.
	Version int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderParams carries everything needed to construct an order in a
// single step. Partial orders do not exist; checkout supplies all of this
// atomically.
type NewOrderParams struct {
	UserID          uuid.UUID
	CustomerEmail   string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod

	// HomeCountry is the default country when the address omits one.
	HomeCountry string
}

// NewOrder validates params and constructs an order in its initial state:
// status pending, payment status pending, total computed from items.
// The returned order owns a copy of the items slice.
func NewOrder(params NewOrderParams) (*Order, error) {
	const op = "order.create"

	if params.UserID == uuid.Nil {
		return nil, NewValidationError(op, "userId", "user ID is required")
	}
	if !params.PaymentMethod.Valid() {
		return nil, NewValidationError(op, "paymentMethod",
			fmt.Sprintf("unknown payment method: %q", string(params.PaymentMethod)))
	}
	if err := validateItems(op, params.Items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              uuid.New(),
		UserID:          params.UserID,
		CustomerEmail:   strings.TrimSpace(params.CustomerEmail),
		Items:           cloneItems(params.Items),
		ShippingAddress: params.ShippingAddress.normalized(params.HomeCountry),
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		PaymentMethod:   params.PaymentMethod,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.recomputeTotal()

	return o, nil
}

// Transition moves the fulfillment status to target if the transition
// table allows it. No notification is sent for fulfillment transitions;
// only payment confirmation notifies.
func (o *Order) Transition(target OrderStatus) error {
	if !target.Valid() {
		return NewValidationError("order.transition", "status",
			fmt.Sprintf("unknown order status: %q", string(target)))
	}
	if !o.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{From: o.Status, To: target}
	}

	o.Status = target
	o.touch()
	return nil
}

// MarkPaid records payment confirmation. Returns true if the payment
// status actually changed, so callers can skip persistence and
// notification on repeated confirmations.
//
// Confirming an already-paid order with the same (or no) intent ID is a
// no-op; confirming with a different intent ID than the one recorded is
// rejected as a conflict rather than silently overwritten.
func (o *Order) MarkPaid(paymentIntentID string) (bool, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)

	switch o.PaymentStatus {
	case PaymentStatusPaid:
		if paymentIntentID != "" && o.PaymentIntentID != "" && paymentIntentID != o.PaymentIntentID {
			return false, ErrPaymentIntentMismatch
		}
		return false, nil
	case PaymentStatusFailed:
		return false, &InvalidPaymentTransitionError{From: o.PaymentStatus, To: PaymentStatusPaid}
	case PaymentStatusPending:
		if paymentIntentID != "" && o.PaymentIntentID != "" && paymentIntentID != o.PaymentIntentID {
			return false, ErrPaymentIntentMismatch
		}
		o.PaymentStatus = PaymentStatusPaid
		if paymentIntentID != "" {
			o.PaymentIntentID = paymentIntentID
		}
		o.touch()
		return true, nil
	}
	return false, &InvalidPaymentTransitionError{From: o.PaymentStatus, To: PaymentStatusPaid}
}

// MarkFailed records that payment did not complete. Failing an
// already-failed order is a no-op; a paid order cannot fail.
func (o *Order) MarkFailed() (bool, error) {
	switch o.PaymentStatus {
	case PaymentStatusFailed:
		return false, nil
	case PaymentStatusPaid:
		return false, &InvalidPaymentTransitionError{From: o.PaymentStatus, To: PaymentStatusFailed}
	case PaymentStatusPending:
		o.PaymentStatus = PaymentStatusFailed
		o.touch()
		return true, nil
	}
	return false, &InvalidPaymentTransitionError{From: o.PaymentStatus, To: PaymentStatusFailed}
}

// SetTrackingNumber sets the carrier tracking reference. Not gated by the
// status machine.
func (o *Order) SetTrackingNumber(trackingNumber string) {
	o.TrackingNumber = strings.TrimSpace(trackingNumber)
	o.touch()
}

// SetNotes sets the free-form notes field, bounded by maxLen characters.
// A maxLen of zero or less applies DefaultMaxNotesLen.
func (o *Order) SetNotes(notes string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxNotesLen
	}
	if utf8.RuneCountInString(notes) > maxLen {
		return NewValidationError("order.set_notes", "notes",
			fmt.Sprintf("notes must be at most %d characters", maxLen))
	}

	o.Notes = notes
	o.touch()
	return nil
}

// ReplaceItems swaps the item list and recomputes the total before the
// mutation is considered committed. The order is never observable with a
// stale total.
func (o *Order) ReplaceItems(items []OrderItem) error {
	if err := validateItems("order.replace_items", items); err != nil {
		return err
	}

	o.Items = cloneItems(items)
	o.recomputeTotal()
	o.touch()
	return nil
}

// AddItem appends an item and recomputes the total.
func (o *Order) AddItem(item OrderItem) error {
	if err := validateItems("order.add_item", []OrderItem{item}); err != nil {
		return err
	}

	o.Items = append(o.Items, item)
	o.recomputeTotal()
	o.touch()
	return nil
}

// ItemCount returns the total quantity across all line items.
func (o *Order) ItemCount() int32 {
	var n int32
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

func (o *Order) recomputeTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	o.TotalCents = total
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func validateItems(op string, items []OrderItem) error {
	if len(items) == 0 {
		return NewValidationError(op, "items", "order must contain at least one item")
	}

	var err error
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			err = AddFieldError(err, fmt.Sprintf("items[%d].productId", i), "product ID is required")
		}
		if item.UnitPriceCents < 0 {
			err = AddFieldError(err, fmt.Sprintf("items[%d].price", i), "price must not be negative")
		}
		if item.Quantity < 1 {
			err = AddFieldError(err, fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
		}
	}
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Op = op
		}
		return err
	}
	return nil
}

func cloneItems(items []OrderItem) []OrderItem {
	out := make([]OrderItem, len(items))
	copy(out, items)
	return out
}

// Page bounds list queries. Zero values apply the defaults.
type Page struct {
	Limit  int32
	Offset int32
}

// Normalize clamps the page to sane bounds: default limit 50, maximum 100.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// OrderRepository is the persistence and query surface for orders.
// Implementations must enforce the sparse-unique payment intent constraint
// and detect concurrent writes via the order's version, returning
// ErrPaymentIntentInUse and ErrOrderModified respectively. All list
// queries return newest createdAt first.
type OrderRepository interface {
	// Create persists a freshly constructed order with its items.
	Create(ctx context.Context, order *Order) error

	// Get returns the order with the given ID, or ErrOrderNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// Update persists order state if the stored version matches
	// order.Version, then increments the version. Returns ErrOrderModified
	// when the stored version is newer.
	Update(ctx context.Context, order *Order) error

	// FindByUser returns the user's orders, newest first.
	FindByUser(ctx context.Context, userID uuid.UUID, page Page) ([]Order, error)

	// FindByStatus returns orders in the given fulfillment status, newest first.
	FindByStatus(ctx context.Context, status OrderStatus, page Page) ([]Order, error)

	// FindPending returns orders awaiting processing, newest first.
	FindPending(ctx context.Context, page Page) ([]Order, error)

	// FindByPaymentStatus returns orders in the given payment status, newest first.
	FindByPaymentStatus(ctx context.Context, status PaymentStatus, page Page) ([]Order, error)
}
