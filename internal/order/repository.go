package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// StatusUpdate describes one accepted lifecycle transition. From is the
// status the caller read; the update only applies while the row still
// holds it, which serializes concurrent transitions per order.
type StatusUpdate struct {
	OrderID            uuid.UUID
	From               Status
	To                 Status
	Note               string
	TrackingNumber     string
	DeliveredAt        *time.Time
	CancellationReason string
	ReturnReason       string
	Timestamp          time.Time
}

// PaymentUpdate carries a payment-status change plus the optional coupled
// fulfillment transition (pending -> confirmed on completed payment).
type PaymentUpdate struct {
	OrderID       uuid.UUID
	PaymentStatus PaymentStatus
	StatusChange  *StatusUpdate
	Timestamp     time.Time
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, status Status) ([]Order, error)
	ListByProducts(ctx context.Context, productIDs []uuid.UUID, status Status) ([]Order, error)
	UpdateStatus(ctx context.Context, upd StatusUpdate) error
	UpdatePayment(ctx context.Context, upd PaymentUpdate) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Create persists the order, its items, the initial history entry and the
// stock decrements in one transaction. The decrement is conditional on
// sufficient stock, so two concurrent orders can never oversell: the
// losing transaction rolls back whole.
func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("Failed to rollback create order transaction")
		}
	}()

	queryOrder := `
		INSERT INTO orders (id, buyer_id, total_amount, status, payment_status, payment_method,
			shipping_street, shipping_city, shipping_state, shipping_zip_code, shipping_country,
			estimated_delivery_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID,
		o.BuyerID,
		o.TotalAmount,
		string(o.Status),
		string(o.PaymentStatus),
		o.PaymentMethod,
		o.ShippingAddress.Street,
		o.ShippingAddress.City,
		o.ShippingAddress.State,
		o.ShippingAddress.ZipCode,
		o.ShippingAddress.Country,
		o.EstimatedDeliveryDate,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	queryDecrement := `
		UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1 AND stock >= $2
	`
	for _, item := range o.Items {
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}

		_, err = tx.Exec(ctx, queryItem, itemID, o.ID, item.ProductID, item.Quantity, item.UnitPrice, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}

		tag, decErr := tx.Exec(ctx, queryDecrement, item.ProductID, item.Quantity, o.CreatedAt)
		if decErr != nil {
			return fmt.Errorf("repository: failed to decrement stock for product %s: %w", item.ProductID, decErr)
		}
		if tag.RowsAffected() == 0 {
			return r.stockFailure(ctx, tx, item)
		}
	}

	queryHistory := `
		INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, entry := range o.StatusHistory {
		_, err = tx.Exec(ctx, queryHistory, o.ID, string(entry.Status), entry.Note, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("repository: failed to insert status history for order %s: %w", o.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}

	return nil
}

// stockFailure distinguishes a vanished product from insufficient stock
// after a conditional decrement touched no rows.
func (r *postgresRepository) stockFailure(ctx context.Context, tx pgx.Tx, item Item) error {
	var available int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, item.ProductID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product %s: %w", item.ProductID, ErrProductGone)
	}
	if err != nil {
		return fmt.Errorf("repository: failed to check stock for product %s: %w", item.ProductID, err)
	}
	return &InsufficientStockError{ProductID: item.ProductID, Available: available, Requested: item.Quantity}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	orders, err := r.loadOrders(ctx, `WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

func (r *postgresRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, status Status) ([]Order, error) {
	if status != "" {
		return r.loadOrders(ctx, `WHERE o.buyer_id = $1 AND o.status = $2 ORDER BY o.created_at DESC`, buyerID, string(status))
	}
	return r.loadOrders(ctx, `WHERE o.buyer_id = $1 ORDER BY o.created_at DESC`, buyerID)
}

// ListByProducts returns every order containing at least one line item
// for any of the given products, newest first. The full item list is
// returned; store-scoped filtering happens in the service.
func (r *postgresRepository) ListByProducts(ctx context.Context, productIDs []uuid.UUID, status Status) ([]Order, error) {
	if len(productIDs) == 0 {
		return []Order{}, nil
	}

	where := `
		WHERE EXISTS (
			SELECT 1 FROM order_items oi
			WHERE oi.order_id = o.id AND oi.product_id = ANY($1)
		)`
	if status != "" {
		return r.loadOrders(ctx, where+` AND o.status = $2 ORDER BY o.created_at DESC`, productIDs, string(status))
	}
	return r.loadOrders(ctx, where+` ORDER BY o.created_at DESC`, productIDs)
}

const orderColumns = `
	o.id, o.buyer_id, o.total_amount, o.status, o.payment_status, o.payment_method,
	o.shipping_street, o.shipping_city, o.shipping_state, o.shipping_zip_code, o.shipping_country,
	o.tracking_number, o.estimated_delivery_date, o.actual_delivery_date,
	o.cancellation_reason, o.return_reason, o.created_at, o.updated_at`

// loadOrders fetches orders matching the WHERE clause, then batch-loads
// their items and status history with two follow-up queries.
func (r *postgresRepository) loadOrders(ctx context.Context, whereClause string, args ...any) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o ` + whereClause

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.BuyerID,
			&o.TotalAmount,
			&o.Status,
			&o.PaymentStatus,
			&o.PaymentMethod,
			&o.ShippingAddress.Street,
			&o.ShippingAddress.City,
			&o.ShippingAddress.State,
			&o.ShippingAddress.ZipCode,
			&o.ShippingAddress.Country,
			&o.TrackingNumber,
			&o.EstimatedDeliveryDate,
			&o.ActualDeliveryDate,
			&o.CancellationReason,
			&o.ReturnReason,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = make([]Item, 0)
		o.StatusHistory = make([]StatusEntry, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemRows, err := r.db.Query(ctx,
		`SELECT order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID uuid.UUID
		var item Item
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := ordersMap[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	historyRows, err := r.db.Query(ctx,
		`SELECT order_id, status, note, created_at FROM order_status_history WHERE order_id = ANY($1) ORDER BY created_at, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query status history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var orderID uuid.UUID
		var entry StatusEntry
		if err := historyRows.Scan(&orderID, &entry.Status, &entry.Note, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status history: %w", err)
		}
		if o, ok := ordersMap[orderID]; ok {
			o.StatusHistory = append(o.StatusHistory, entry)
		}
	}
	if err = historyRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating status history: %w", err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}

// UpdateStatus applies a validated transition. The UPDATE is conditional
// on the source status, so a concurrent transition makes this one fail
// with ErrStatusConflict instead of silently corrupting the history.
func (r *postgresRepository) UpdateStatus(ctx context.Context, upd StatusUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Error().Err(rbErr).Stringer("order_id", upd.OrderID).Msg("Failed to rollback status update transaction")
		}
	}()

	query := `
		UPDATE orders
		SET status = $2,
			updated_at = $3,
			tracking_number = CASE WHEN $4 <> '' THEN $4 ELSE tracking_number END,
			actual_delivery_date = COALESCE($5, actual_delivery_date),
			cancellation_reason = CASE WHEN $6 <> '' THEN $6 ELSE cancellation_reason END,
			return_reason = CASE WHEN $7 <> '' THEN $7 ELSE return_reason END
		WHERE id = $1 AND status = $8
	`
	tag, err := tx.Exec(ctx, query,
		upd.OrderID,
		string(upd.To),
		upd.Timestamp,
		upd.TrackingNumber,
		upd.DeliveredAt,
		upd.CancellationReason,
		upd.ReturnReason,
		string(upd.From),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", upd.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleUpdate(ctx, tx, upd.OrderID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO order_status_history (order_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
		upd.OrderID, string(upd.To), upd.Note, upd.Timestamp)
	if err != nil {
		return fmt.Errorf("repository: failed to insert status history for order %s: %w", upd.OrderID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdatePayment(ctx context.Context, upd PaymentUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Error().Err(rbErr).Stringer("order_id", upd.OrderID).Msg("Failed to rollback payment update transaction")
		}
	}()

	if upd.StatusChange != nil {
		// Coupled advance: payment and fulfillment status move together or
		// not at all.
		sc := upd.StatusChange
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET payment_status = $2, status = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
			upd.OrderID, string(upd.PaymentStatus), string(sc.To), upd.Timestamp, string(sc.From))
		if err != nil {
			return fmt.Errorf("repository: failed to update payment status %s: %w", upd.OrderID, err)
		}
		if tag.RowsAffected() == 0 {
			return r.staleUpdate(ctx, tx, upd.OrderID)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO order_status_history (order_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
			upd.OrderID, string(sc.To), sc.Note, upd.Timestamp)
		if err != nil {
			return fmt.Errorf("repository: failed to insert status history for order %s: %w", upd.OrderID, err)
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1`,
			upd.OrderID, string(upd.PaymentStatus), upd.Timestamp)
		if err != nil {
			return fmt.Errorf("repository: failed to update payment status %s: %w", upd.OrderID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) staleUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("repository: failed to re-read order %s: %w", orderID, err)
	}
	return ErrStatusConflict
}
