package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveforge/storefront/internal/domain"
	"github.com/waveforge/storefront/internal/router"
	"github.com/waveforge/storefront/internal/service"
)

// stubService lets each test pin the behavior of just the methods the
// handler under test calls.
type stubService struct {
	placeFunc          func(ctx context.Context, params service.PlaceOrderParams) (*domain.Order, error)
	getFunc            func(ctx context.Context, orderID string) (*domain.Order, error)
	listUserFunc       func(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error)
	listStatusFunc     func(ctx context.Context, status string, page domain.Page) ([]domain.Order, error)
	listPendingFunc    func(ctx context.Context, page domain.Page) ([]domain.Order, error)
	listPayStatusFunc  func(ctx context.Context, status string, page domain.Page) ([]domain.Order, error)
	updateStatusFunc   func(ctx context.Context, orderID, status string) (*domain.Order, error)
	confirmPaymentFunc func(ctx context.Context, orderID, intentID string) (*domain.Order, error)
	failPaymentFunc    func(ctx context.Context, orderID string) (*domain.Order, error)
	setTrackingFunc    func(ctx context.Context, orderID, tracking string) (*domain.Order, error)
	setNotesFunc       func(ctx context.Context, orderID, notes string) (*domain.Order, error)
}

var _ service.OrderService = (*stubService)(nil)

func (s *stubService) PlaceOrder(ctx context.Context, params service.PlaceOrderParams) (*domain.Order, error) {
	return s.placeFunc(ctx, params)
}
func (s *stubService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.getFunc(ctx, orderID)
}
func (s *stubService) ListUserOrders(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error) {
	return s.listUserFunc(ctx, userID, page)
}
func (s *stubService) ListOrdersByStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error) {
	return s.listStatusFunc(ctx, status, page)
}
func (s *stubService) ListPendingOrders(ctx context.Context, page domain.Page) ([]domain.Order, error) {
	return s.listPendingFunc(ctx, page)
}
func (s *stubService) ListOrdersByPaymentStatus(ctx context.Context, status string, page domain.Page) ([]domain.Order, error) {
	return s.listPayStatusFunc(ctx, status, page)
}
func (s *stubService) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	return s.updateStatusFunc(ctx, orderID, status)
}
func (s *stubService) ConfirmPayment(ctx context.Context, orderID, intentID string) (*domain.Order, error) {
	return s.confirmPaymentFunc(ctx, orderID, intentID)
}
func (s *stubService) FailPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.failPaymentFunc(ctx, orderID)
}
func (s *stubService) SetTrackingNumber(ctx context.Context, orderID, tracking string) (*domain.Order, error) {
	return s.setTrackingFunc(ctx, orderID, tracking)
}
func (s *stubService) SetNotes(ctx context.Context, orderID, notes string) (*domain.Order, error) {
	return s.setNotesFunc(ctx, orderID, notes)
}

func sampleOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(domain.NewOrderParams{
		UserID:        uuid.New(),
		CustomerEmail: "ada@example.com",
		Items: []domain.OrderItem{
			{ProductID: uuid.New(), Name: "Tape Echo", UnitPriceCents: 4900, Quantity: 1},
		},
		ShippingAddress: domain.ShippingAddress{FullName: "Ada Lovelace"},
		PaymentMethod:   domain.PaymentMethodCard,
		HomeCountry:     "United States",
	})
	require.NoError(t, err)
	return order
}

func newTestRouter(svc service.OrderService) *router.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewOrderHandler(svc, logger)

	r := router.New()
	r.Post("/api/orders", h.PlaceOrder)
	r.Get("/api/orders", h.ListOrders)
	r.Get("/api/orders/{id}", h.GetOrder)
	r.Get("/api/users/{id}/orders", h.ListUserOrders)
	r.Patch("/api/orders/{id}/status", h.UpdateStatus)
	r.Post("/api/orders/{id}/payment", h.RecordPayment)
	r.Patch("/api/orders/{id}/tracking", h.SetTracking)
	r.Patch("/api/orders/{id}/notes", h.SetNotes)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func placeOrderBody(userID string) string {
	return `{
		"userId": "` + userID + `",
		"customerEmail": "ada@example.com",
		"items": [
			{"productId": "` + uuid.NewString() + `", "name": "Tape Echo", "priceCents": 4900, "quantity": 1}
		],
		"shippingAddress": {"fullName": "Ada Lovelace", "street": "12 Analytical Way", "city": "Portland"},
		"paymentMethod": "card"
	}`
}

func TestPlaceOrderHandler(t *testing.T) {
	order := sampleOrder(t)
	svc := &stubService{
		placeFunc: func(_ context.Context, params service.PlaceOrderParams) (*domain.Order, error) {
			assert.Equal(t, "ada@example.com", params.CustomerEmail)
			return order, nil
		},
	}

	r := newTestRouter(svc)

	t.Run("created", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/orders", placeOrderBody(uuid.NewString()))
		require.Equal(t, http.StatusCreated, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, order.ID.String(), got["id"])
		assert.Equal(t, float64(4900), got["totalCents"])
		assert.Equal(t, "pending", got["status"])
		_, hasVersion := got["version"]
		assert.False(t, hasVersion, "version must not be serialized")
	})

	t.Run("invalid user id", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/orders", placeOrderBody("not-a-uuid"))
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Error struct {
				Code   string            `json:"code"`
				Fields map[string]string `json:"fields"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "invalid", resp.Error.Code)
		assert.Contains(t, resp.Error.Fields, "userId")
	})

	t.Run("field errors use json keys", func(t *testing.T) {
		body := `{
			"userId": "` + uuid.NewString() + `",
			"customerEmail": "not-an-email",
			"items": [
				{"productId": "not-a-uuid", "name": "Tape Echo", "priceCents": 4900, "quantity": 1}
			],
			"paymentMethod": "card"
		}`
		w := doJSON(t, r, http.MethodPost, "/api/orders", body)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Error struct {
				Fields map[string]string `json:"fields"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error.Fields, "customerEmail")
		assert.Contains(t, resp.Error.Fields, "items[0].productId")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/orders", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty items", func(t *testing.T) {
		body := `{
			"userId": "` + uuid.NewString() + `",
			"customerEmail": "ada@example.com",
			"items": [],
			"paymentMethod": "card"
		}`
		w := doJSON(t, r, http.MethodPost, "/api/orders", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetOrderHandler(t *testing.T) {
	order := sampleOrder(t)
	svc := &stubService{
		getFunc: func(_ context.Context, orderID string) (*domain.Order, error) {
			if orderID == order.ID.String() {
				return order, nil
			}
			return nil, domain.ErrOrderNotFound
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodGet, "/api/orders/"+order.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/orders/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrdersHandler(t *testing.T) {
	order := sampleOrder(t)
	svc := &stubService{
		listPendingFunc: func(_ context.Context, page domain.Page) ([]domain.Order, error) {
			assert.Equal(t, int32(50), page.Limit)
			return []domain.Order{*order}, nil
		},
		listStatusFunc: func(_ context.Context, status string, page domain.Page) ([]domain.Order, error) {
			assert.Equal(t, "shipped", status)
			assert.Equal(t, int32(10), page.Limit)
			return nil, nil
		},
		listPayStatusFunc: func(_ context.Context, status string, _ domain.Page) ([]domain.Order, error) {
			assert.Equal(t, "paid", status)
			return nil, nil
		},
	}
	r := newTestRouter(svc)

	t.Run("default pending", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/orders", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp orderListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Orders, 1)
		assert.Equal(t, int32(50), resp.Limit)
	})

	t.Run("status filter with limit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/orders?status=shipped&limit=10", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("payment status filter", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/orders?paymentStatus=paid", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("conflicting filters", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/orders?status=shipped&paymentStatus=paid", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateStatusHandler(t *testing.T) {
	order := sampleOrder(t)
	svc := &stubService{
		updateStatusFunc: func(_ context.Context, orderID, status string) (*domain.Order, error) {
			if status == "processing" {
				return order, nil
			}
			return nil, &domain.InvalidTransitionError{
				From: domain.OrderStatusPending,
				To:   domain.OrderStatus(status),
			}
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPatch, "/api/orders/"+order.ID.String()+"/status",
		`{"status": "processing"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/orders/"+order.ID.String()+"/status",
		`{"status": "delivered"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "invalid transition maps to 409")
}

func TestRecordPaymentHandler(t *testing.T) {
	order := sampleOrder(t)
	confirmed := false
	failed := false
	svc := &stubService{
		confirmPaymentFunc: func(_ context.Context, _, intentID string) (*domain.Order, error) {
			confirmed = true
			assert.Equal(t, "pi_abc", intentID)
			return order, nil
		},
		failPaymentFunc: func(_ context.Context, _ string) (*domain.Order, error) {
			failed = true
			return order, nil
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/orders/"+order.ID.String()+"/payment",
		`{"status": "paid", "paymentIntentId": "pi_abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, confirmed)

	w = doJSON(t, r, http.MethodPost, "/api/orders/"+order.ID.String()+"/payment",
		`{"status": "failed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, failed)

	w = doJSON(t, r, http.MethodPost, "/api/orders/"+order.ID.String()+"/payment",
		`{"status": "refunded"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordPaymentHandler_IntentConflict(t *testing.T) {
	svc := &stubService{
		confirmPaymentFunc: func(_ context.Context, _, _ string) (*domain.Order, error) {
			return nil, domain.ErrPaymentIntentInUse
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/orders/"+uuid.NewString()+"/payment",
		`{"status": "paid", "paymentIntentId": "pi_dup"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSetTrackingHandler(t *testing.T) {
	order := sampleOrder(t)
	svc := &stubService{
		setTrackingFunc: func(_ context.Context, _, tracking string) (*domain.Order, error) {
			assert.Equal(t, "1Z999", tracking)
			return order, nil
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPatch, "/api/orders/"+order.ID.String()+"/tracking",
		`{"trackingNumber": "1Z999"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/orders/"+order.ID.String()+"/tracking", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	t.Run("no dependency check", func(t *testing.T) {
		w := httptest.NewRecorder()
		Health(nil)(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("database down", func(t *testing.T) {
		w := httptest.NewRecorder()
		Health(pingerFunc(func(context.Context) error {
			return context.DeadlineExceeded
		}))(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
