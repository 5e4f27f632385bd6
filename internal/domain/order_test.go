package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() NewOrderParams {
	return NewOrderParams{
		UserID: uuid.New(),
		Items: []OrderItem{
			{ProductID: uuid.New(), Name: "Velvet Reverb", UnitPriceCents: 1000, Quantity: 2, Icon: "reverb"},
			{ProductID: uuid.New(), Name: "Tape Saturator", UnitPriceCents: 500, Quantity: 1, Icon: "tape"},
		},
		ShippingAddress: ShippingAddress{
			FullName:   "  Ada Lovelace ",
			Street:     "1 Analytical Way",
			City:       "London",
			State:      "",
			PostalCode: " EC1A 1BB ",
		},
		PaymentMethod: PaymentMethodCard,
		HomeCountry:   "United Kingdom",
	}
}

func TestNewOrder(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, int64(2500), order.TotalCents, "1000*2 + 500*1")
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, PaymentMethodCard, order.PaymentMethod)
	assert.Empty(t, order.PaymentIntentID)
	assert.Equal(t, int32(1), order.Version)
	assert.Equal(t, order.CreatedAt, order.UpdatedAt)

	// Address fields are trimmed and country defaults to the home country.
	assert.Equal(t, "Ada Lovelace", order.ShippingAddress.FullName)
	assert.Equal(t, "EC1A 1BB", order.ShippingAddress.PostalCode)
	assert.Equal(t, "United Kingdom", order.ShippingAddress.Country)
}

func TestNewOrder_OwnsItems(t *testing.T) {
	params := validParams()
	order, err := NewOrder(params)
	require.NoError(t, err)

	// Mutating the caller's slice must not reach into the aggregate.
	params.Items[0].UnitPriceCents = 999999
	assert.Equal(t, int64(1000), order.Items[0].UnitPriceCents)
}

func TestNewOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewOrderParams)
		field  string
	}{
		{
			name:   "empty items",
			mutate: func(p *NewOrderParams) { p.Items = nil },
			field:  "items",
		},
		{
			name:   "negative price",
			mutate: func(p *NewOrderParams) { p.Items[0].UnitPriceCents = -1 },
			field:  "items[0].price",
		},
		{
			name:   "zero quantity",
			mutate: func(p *NewOrderParams) { p.Items[1].Quantity = 0 },
			field:  "items[1].quantity",
		},
		{
			name:   "missing product reference",
			mutate: func(p *NewOrderParams) { p.Items[0].ProductID = uuid.Nil },
			field:  "items[0].productId",
		},
		{
			name:   "missing user",
			mutate: func(p *NewOrderParams) { p.UserID = uuid.Nil },
			field:  "userId",
		},
		{
			name:   "unknown payment method",
			mutate: func(p *NewOrderParams) { p.PaymentMethod = "check" },
			field:  "paymentMethod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)

			_, err := NewOrder(params)
			require.Error(t, err)
			require.True(t, IsValidationError(err), "expected ValidationError, got %T", err)
			assert.Contains(t, GetValidationFields(err), tt.field)
		})
	}
}

func TestOrder_TotalInvariant(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	checkTotal := func() {
		t.Helper()
		var want int64
		for _, item := range order.Items {
			want += item.UnitPriceCents * int64(item.Quantity)
		}
		assert.Equal(t, want, order.TotalCents)
	}

	checkTotal()

	require.NoError(t, order.AddItem(OrderItem{
		ProductID: uuid.New(), Name: "Glue Compressor", UnitPriceCents: 4900, Quantity: 1,
	}))
	assert.Equal(t, int64(7400), order.TotalCents)
	checkTotal()

	require.NoError(t, order.ReplaceItems([]OrderItem{
		{ProductID: uuid.New(), Name: "Free Sampler", UnitPriceCents: 0, Quantity: 3},
	}))
	assert.Equal(t, int64(0), order.TotalCents)
	checkTotal()
}

func TestOrder_ReplaceItemsRejectsEmpty(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	err = order.ReplaceItems(nil)
	require.True(t, IsValidationError(err))
	assert.Len(t, order.Items, 2, "failed mutation must not alter items")
	assert.Equal(t, int64(2500), order.TotalCents)
}

func TestOrderStatus_Transitions(t *testing.T) {
	all := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	}
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusDelivered},
		OrderStatusDelivered:  {},
		OrderStatusCancelled:  {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrder_Transition(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	require.NoError(t, order.Transition(OrderStatusProcessing))
	assert.Equal(t, OrderStatusProcessing, order.Status)

	// Moving backwards is not in the table.
	err = order.Transition(OrderStatusPending)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, OrderStatusProcessing, ite.From)
	assert.Equal(t, OrderStatusPending, ite.To)
	assert.Equal(t, OrderStatusProcessing, order.Status, "failed transition must not change status")
}

func TestOrder_TransitionSkippingFails(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	var ite *InvalidTransitionError
	require.ErrorAs(t, order.Transition(OrderStatusDelivered), &ite)
	require.ErrorAs(t, order.Transition(OrderStatusShipped), &ite)
}

func TestOrder_CancelAfterShipFails(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	require.NoError(t, order.Transition(OrderStatusProcessing))
	require.NoError(t, order.Transition(OrderStatusShipped))

	var ite *InvalidTransitionError
	require.ErrorAs(t, order.Transition(OrderStatusCancelled), &ite)
}

func TestOrder_TransitionUnknownStatus(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	err = order.Transition("archived")
	assert.True(t, IsValidationError(err))
}

func TestOrder_MarkPaid(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	changed, err := order.MarkPaid("pi_abc")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "pi_abc", order.PaymentIntentID)

	// Second confirmation is a no-op, not an error.
	changed, err = order.MarkPaid("pi_abc")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, PaymentStatusPaid, order.PaymentStatus)

	// Same for a confirmation without an intent ID.
	changed, err = order.MarkPaid("")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOrder_MarkPaidConflictingIntent(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	_, err = order.MarkPaid("pi_abc")
	require.NoError(t, err)

	_, err = order.MarkPaid("pi_other")
	assert.True(t, errors.Is(err, ErrPaymentIntentMismatch))
	assert.Equal(t, "pi_abc", order.PaymentIntentID, "conflicting intent must not overwrite")
}

func TestOrder_MarkFailed(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	changed, err := order.MarkFailed()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentStatusFailed, order.PaymentStatus)

	// failed is terminal: repeated failure is a no-op, paying afterwards is rejected.
	changed, err = order.MarkFailed()
	require.NoError(t, err)
	assert.False(t, changed)

	var ipte *InvalidPaymentTransitionError
	_, err = order.MarkPaid("pi_late")
	require.ErrorAs(t, err, &ipte)
	assert.Equal(t, PaymentStatusFailed, ipte.From)
}

func TestOrder_MarkFailedAfterPaidRejected(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	_, err = order.MarkPaid("pi_abc")
	require.NoError(t, err)

	var ipte *InvalidPaymentTransitionError
	_, err = order.MarkFailed()
	require.ErrorAs(t, err, &ipte)
	assert.Equal(t, PaymentStatusPaid, order.PaymentStatus)
}

func TestOrder_SetNotes(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	require.NoError(t, order.SetNotes("please gift wrap", 0))
	assert.Equal(t, "please gift wrap", order.Notes)

	err = order.SetNotes(strings.Repeat("x", DefaultMaxNotesLen+1), 0)
	require.True(t, IsValidationError(err))
	assert.Equal(t, "please gift wrap", order.Notes, "rejected notes must not stick")

	// Custom limit from configuration.
	err = order.SetNotes(strings.Repeat("y", 11), 10)
	require.True(t, IsValidationError(err))
	require.NoError(t, order.SetNotes(strings.Repeat("y", 10), 10))
}

func TestOrder_SetTrackingNumber(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)

	// Tracking is freely settable regardless of status.
	order.SetTrackingNumber("  1Z999AA10123456784 ")
	assert.Equal(t, "1Z999AA10123456784", order.TrackingNumber)
}

func TestOrder_ItemCount(t *testing.T) {
	order, err := NewOrder(validParams())
	require.NoError(t, err)
	assert.Equal(t, int32(3), order.ItemCount())
}

func TestPage_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"defaults", Page{}, Page{Limit: 50, Offset: 0}},
		{"capped", Page{Limit: 500, Offset: 10}, Page{Limit: 100, Offset: 10}},
		{"negative offset", Page{Limit: 20, Offset: -1}, Page{Limit: 20, Offset: 0}},
		{"passthrough", Page{Limit: 25, Offset: 75}, Page{Limit: 25, Offset: 75}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}
