package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/waveforge/storefront/internal/domain"
	"github.com/waveforge/storefront/internal/service"
)

// maxBodyBytes bounds request bodies. Checkout payloads are small.
const maxBodyBytes = 1 << 20

// OrderHandler serves the order lifecycle JSON API.
type OrderHandler struct {
	service  service.OrderService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc service.OrderService, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report field errors under the JSON keys clients actually sent.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &OrderHandler{
		service:  svc,
		validate: validate,
		logger:   logger,
	}
}

// placeOrderRequest is the checkout payload.
type placeOrderRequest struct {
	UserID          string             `json:"userId" validate:"required,uuid"`
	CustomerEmail   string             `json:"customerEmail" validate:"required,email"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress shippingAddress    `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" validate:"required,oneof=card paypal cash"`
}

type orderItemRequest struct {
	ProductID      string `json:"productId" validate:"required,uuid"`
	Name           string `json:"name" validate:"required"`
	UnitPriceCents int64  `json:"priceCents" validate:"gte=0"`
	Quantity       int32  `json:"quantity" validate:"gte=1"`
	Icon           string `json:"icon"`
}

type shippingAddress struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type paymentRequest struct {
	Status          string `json:"status" validate:"required,oneof=paid failed"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type trackingRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"required"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// orderResponse is the serialized order. The concurrency version is
// internal and never exposed.
type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	CustomerEmail   string              `json:"customerEmail"`
	Items           []orderItemResponse `json:"items"`
	ShippingAddress shippingAddress     `json:"shippingAddress"`
	TotalCents      int64               `json:"totalCents"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	PaymentMethod   string              `json:"paymentMethod"`
	PaymentIntentID string              `json:"paymentIntentId,omitempty"`
	TrackingNumber  string              `json:"trackingNumber,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type orderItemResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"priceCents"`
	Quantity       int32  `json:"quantity"`
	Icon           string `json:"icon,omitempty"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int32           `json:"limit"`
	Offset int32           `json:"offset"`
}

// PlaceOrder handles POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]service.ItemParams, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.ItemParams{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			Icon:           item.Icon,
		}
	}

	order, err := h.service.PlaceOrder(r.Context(), service.PlaceOrderParams{
		UserID:        req.UserID,
		CustomerEmail: req.CustomerEmail,
		Items:         items,
		ShippingAddress: domain.ShippingAddress{
			FullName:   req.ShippingAddress.FullName,
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListOrders handles GET /api/orders. Filter with ?status= or
// ?paymentStatus= (mutually exclusive); no filter returns pending orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := strings.TrimSpace(query.Get("status"))
	paymentStatus := strings.TrimSpace(query.Get("paymentStatus"))
	page := parsePage(query.Get("limit"), query.Get("offset"))

	if status != "" && paymentStatus != "" {
		writeError(w, r, domain.NewValidationError("order.list", "status",
			"status and paymentStatus filters are mutually exclusive"))
		return
	}

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case paymentStatus != "":
		orders, err = h.service.ListOrdersByPaymentStatus(r.Context(), paymentStatus, page)
	case status != "":
		orders, err = h.service.ListOrdersByStatus(r.Context(), status, page)
	default:
		orders, err = h.service.ListPendingOrders(r.Context(), page)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders, page))
}

// ListUserOrders handles GET /api/users/{id}/orders
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parsePage(query.Get("limit"), query.Get("offset"))

	orders, err := h.service.ListUserOrders(r.Context(), r.PathValue("id"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders, page))
}

// UpdateStatus handles PATCH /api/orders/{id}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// RecordPayment handles POST /api/orders/{id}/payment. The payment
// processor callback reports the outcome: paid or failed.
func (h *OrderHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		order *domain.Order
		err   error
	)
	if req.Status == string(domain.PaymentStatusPaid) {
		order, err = h.service.ConfirmPayment(r.Context(), r.PathValue("id"), req.PaymentIntentID)
	} else {
		order, err = h.service.FailPayment(r.Context(), r.PathValue("id"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// SetTracking handles PATCH /api/orders/{id}/tracking
func (h *OrderHandler) SetTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.SetTrackingNumber(r.Context(), r.PathValue("id"), req.TrackingNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// SetNotes handles PATCH /api/orders/{id}/notes
func (h *OrderHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.SetNotes(r.Context(), r.PathValue("id"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// decode parses and validates a JSON request body. On failure it writes
// the error response and returns false.
func (h *OrderHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, domain.Errorf(domain.EINVALID, "", "invalid request body: %v", err))
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		writeError(w, r, validationToDomain(err))
		return false
	}
	return true
}

// validationToDomain converts validator errors into the domain's
// field-keyed validation error so clients get one consistent shape.
func validationToDomain(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Errorf(domain.EINVALID, "", "invalid request body")
	}

	var out error
	for _, fe := range verrs {
		out = domain.AddFieldError(out, fieldName(fe), validationMessage(fe))
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	// With JSON tag names registered, the namespace reads
	// "placeOrderRequest.items[0].productId"; drop the struct name.
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func parsePage(limitStr, offsetStr string) domain.Page {
	var page domain.Page
	if n, err := strconv.ParseInt(limitStr, 10, 32); err == nil {
		page.Limit = int32(n)
	}
	if n, err := strconv.ParseInt(offsetStr, 10, 32); err == nil {
		page.Offset = int32(n)
	}
	return page.Normalize()
}

func toOrderResponse(order *domain.Order) orderResponse {
	items := make([]orderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemResponse{
			ProductID:      item.ProductID.String(),
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			Icon:           item.Icon,
		}
	}

	return orderResponse{
		ID:            order.ID.String(),
		UserID:        order.UserID.String(),
		CustomerEmail: order.CustomerEmail,
		Items:         items,
		ShippingAddress: shippingAddress{
			FullName:   order.ShippingAddress.FullName,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		TotalCents:      order.TotalCents,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: order.PaymentIntentID,
		TrackingNumber:  order.TrackingNumber,
		Notes:           order.Notes,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderListResponse(orders []domain.Order, page domain.Page) orderListResponse {
	out := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i := range orders {
		out.Orders[i] = toOrderResponse(&orders[i])
	}
	return out
}
