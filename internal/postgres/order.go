package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waveforge/storefront/internal/domain"
)

// paymentIntentConstraint is the sparse-unique index on orders.payment_intent_id.
const paymentIntentConstraint = "idx_orders_payment_intent_id"

const orderColumns = `id, user_id, customer_email,
	ship_full_name, ship_street, ship_city, ship_state, ship_postal_code, ship_country,
	total_cents, status, payment_status, payment_method, payment_intent_id,
	tracking_number, notes, version, created_at, updated_at`

// OrderStore implements domain.OrderRepository using PostgreSQL.
// Concurrent writes to the same order are detected via the version column:
// an update whose version no longer matches returns domain.ErrOrderModified.
type OrderStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that OrderStore implements domain.OrderRepository.
var _ domain.OrderRepository = (*OrderStore)(nil)

// NewOrderStore creates a new PostgreSQL-backed order repository.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists a freshly constructed order with its items in a single
// transaction.
func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	const op = "order.create"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, customer_email,
			ship_full_name, ship_street, ship_city, ship_state, ship_postal_code, ship_country,
			total_cents, status, payment_status, payment_method, payment_intent_id,
			tracking_number, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		order.ID, order.UserID, order.CustomerEmail,
		order.ShippingAddress.FullName, order.ShippingAddress.Street, order.ShippingAddress.City,
		order.ShippingAddress.State, order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
		order.TotalCents, string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		textOrNull(order.PaymentIntentID),
		order.TrackingNumber, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, op, "failed to insert order")
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return domain.Internal(err, op, "failed to insert order items")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit order")
	}

	return nil
}

// Get returns the order with the given ID, including its items.
func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "order.get"

	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, op, "failed to load order")
	}

	items, err := s.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	order.Items = items[order.ID]

	return order, nil
}

// Update persists order state if the stored version matches order.Version.
// Items are rewritten so the persisted total and line items can never
// drift apart. On success the in-memory version is advanced.
func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	const op = "order.update"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET
			ship_full_name = $1, ship_street = $2, ship_city = $3, ship_state = $4,
			ship_postal_code = $5, ship_country = $6,
			total_cents = $7, status = $8, payment_status = $9, payment_intent_id = $10,
			tracking_number = $11, notes = $12, updated_at = $13,
			version = version + 1
		WHERE id = $14 AND version = $15`,
		order.ShippingAddress.FullName, order.ShippingAddress.Street, order.ShippingAddress.City,
		order.ShippingAddress.State, order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
		order.TotalCents, string(order.Status), string(order.PaymentStatus),
		textOrNull(order.PaymentIntentID),
		order.TrackingNumber, order.Notes, order.UpdatedAt,
		order.ID, order.Version,
	)
	if err != nil {
		return mapWriteError(err, op, "failed to update order")
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID,
		).Scan(&exists); err != nil {
			return domain.Internal(err, op, "failed to check order existence")
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderModified
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return domain.Internal(err, op, "failed to clear order items")
	}
	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return domain.Internal(err, op, "failed to rewrite order items")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit order update")
	}

	order.Version++
	return nil
}

// FindByUser returns the user's orders, newest first.
func (s *OrderStore) FindByUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.Order, error) {
	return s.list(ctx, "order.find_by_user",
		`SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, page)
}

// FindByStatus returns orders in the given fulfillment status, newest first.
func (s *OrderStore) FindByStatus(ctx context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error) {
	return s.list(ctx, "order.find_by_status",
		`SELECT `+orderColumns+` FROM orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, string(status), page)
}

// FindPending returns orders awaiting processing, newest first.
func (s *OrderStore) FindPending(ctx context.Context, page domain.Page) ([]domain.Order, error) {
	return s.FindByStatus(ctx, domain.OrderStatusPending, page)
}

// FindByPaymentStatus returns orders in the given payment status, newest first.
func (s *OrderStore) FindByPaymentStatus(ctx context.Context, status domain.PaymentStatus, page domain.Page) ([]domain.Order, error) {
	return s.list(ctx, "order.find_by_payment_status",
		`SELECT `+orderColumns+` FROM orders
		WHERE payment_status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, string(status), page)
}

func (s *OrderStore) list(ctx context.Context, op, query string, key any, page domain.Page) ([]domain.Order, error) {
	page = page.Normalize()

	rows, err := s.pool.Query(ctx, query, key, page.Limit, page.Offset)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query orders")
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []uuid.UUID
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan order")
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read orders")
	}

	if len(ids) == 0 {
		return []domain.Order{}, nil
	}

	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (s *OrderStore) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, product_id, name, unit_price_cents, quantity, icon
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.UnitPriceCents, &item.Quantity, &item.Icon); err != nil {
			return nil, err
		}
		items[orderID] = append(items[orderID], item)
	}

	return items, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []domain.OrderItem) error {
	for i, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, unit_price_cents, quantity, icon, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, item.ProductID, item.Name, item.UnitPriceCents, item.Quantity, item.Icon, i,
		)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var intentID pgtype.Text
	var status, paymentStatus, paymentMethod string

	err := row.Scan(
		&o.ID, &o.UserID, &o.CustomerEmail,
		&o.ShippingAddress.FullName, &o.ShippingAddress.Street, &o.ShippingAddress.City,
		&o.ShippingAddress.State, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.TotalCents, &status, &paymentStatus, &paymentMethod, &intentID,
		&o.TrackingNumber, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	if intentID.Valid {
		o.PaymentIntentID = intentID.String
	}

	return &o, nil
}

// textOrNull maps an empty string to SQL NULL so the sparse-unique index
// on payment_intent_id ignores orders without an intent.
func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func mapWriteError(err error, op, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == paymentIntentConstraint:
			return domain.ErrPaymentIntentInUse
		case pgErr.Code == "23514": // check_violation: invariant broken at persistence
			return domain.WrapError(err, domain.ECONFLICT, op, "order violates a persistence constraint")
		}
	}
	return domain.Internal(err, op, message)
}
