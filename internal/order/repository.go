package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Repository is the persistence gateway for orders. Every multi-row write
// happens inside a single transaction so that a failed call never leaves a
// partially written order behind.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, filter Filter) ([]Order, int, error)
	// UpdateStatus reports whether a write actually happened: it is a no-op
	// when the stored status already equals newStatus.
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) (*Order, bool, error)
	// MarkPaid is idempotent: a second call for an already paid order
	// returns the stored state without writing anything.
	MarkPaid(ctx context.Context, id uuid.UUID, chargeReference, receiptURL string) (*Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// finish rolls back tx when the operation failed (or panicked) and commits
// it otherwise, folding a commit failure into the returned error.
func finish(ctx context.Context, tx pgx.Tx, err *error) {
	if p := recover(); p != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("repository: rollback after panic failed")
		}
		panic(p)
	}
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Error().Err(rbErr).Msg("repository: rollback failed")
		}
		return
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		*err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
	}
}

func (r *postgresRepository) Create(ctx context.Context, order *Order) (err error) {
	if order.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order id: %w", genErr)
		}
		order.ID = genID
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer finish(ctx, tx, &err)

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, status, total_amount, total_items, paid, charge_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, queryOrder,
		order.ID,
		string(order.Status),
		order.TotalAmount,
		order.TotalItems,
		order.Paid,
		order.ChargeReference,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range order.Items {
		item := &order.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item id: %w", genErr)
			return err
		}
		item.ID = itemID
		item.OrderID = order.ID
		item.CreatedAt = now
		item.UpdatedAt = now

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Quantity,
			item.Price,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", order.ID, err)
		}
	}

	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectOrderColumns = `
	SELECT id, status, total_amount, total_items, paid, paid_at, charge_reference, created_at, updated_at
	FROM orders
`

func scanOrder(row pgx.Row, order *Order) error {
	return row.Scan(
		&order.ID,
		&order.Status,
		&order.TotalAmount,
		&order.TotalItems,
		&order.Paid,
		&order.PaidAt,
		&order.ChargeReference,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}

func loadOrder(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (*Order, error) {
	query := selectOrderColumns + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var order Order
	if err := scanOrder(q.QueryRow(ctx, query, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	items, err := loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func loadItems(ctx context.Context, q queryer, orderID uuid.UUID) ([]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, price, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}

	return items, nil
}

func loadReceipt(ctx context.Context, q queryer, orderID uuid.UUID) (*Receipt, error) {
	query := `
		SELECT id, order_id, receipt_url, created_at
		FROM order_receipts
		WHERE order_id = $1
	`
	var receipt Receipt
	err := q.QueryRow(ctx, query, orderID).Scan(
		&receipt.ID,
		&receipt.OrderID,
		&receipt.ReceiptURL,
		&receipt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select receipt for order %s: %w", orderID, err)
	}
	return &receipt, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := loadOrder(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}

	if order.Paid {
		receipt, err := loadReceipt(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		order.Receipt = receipt
	}

	return order, nil
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Order, int, error) {
	where := ""
	args := []any{}
	if filter.Status != nil {
		where = ` WHERE status = $1`
		args = append(args, string(*filter.Status))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	dataQuery := fmt.Sprintf(
		selectOrderColumns+where+` ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var order Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	return orders, total, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) (order *Order, changed bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer finish(ctx, tx, &err)

	// Row lock keeps the equality check and the update atomic with respect
	// to concurrent writers on the same order.
	order, err = loadOrder(ctx, tx, id, true)
	if err != nil {
		return nil, false, err
	}

	if order.Status == newStatus {
		return order, false, nil
	}

	updatedAt := time.Now().UTC()
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	if _, err = tx.Exec(ctx, query, string(newStatus), updatedAt, id); err != nil {
		return nil, false, fmt.Errorf("repository: failed to update status for order %s: %w", id, err)
	}

	order.Status = newStatus
	order.UpdatedAt = updatedAt

	return order, true, nil
}

func (r *postgresRepository) MarkPaid(ctx context.Context, id uuid.UUID, chargeReference, receiptURL string) (order *Order, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer finish(ctx, tx, &err)

	order, err = loadOrder(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	// Duplicate confirmation delivery: keep the stored state, write nothing.
	if order.Paid {
		receipt, rcErr := loadReceipt(ctx, tx, id)
		if rcErr != nil {
			err = rcErr
			return nil, err
		}
		order.Receipt = receipt
		log.Info().Stringer("order_id", id).Msg("repository: order already paid, skipping update")
		return order, nil
	}

	paidAt := time.Now().UTC()
	updateQuery := `
		UPDATE orders
		SET status = $1, paid = TRUE, paid_at = $2, charge_reference = $3, updated_at = $2
		WHERE id = $4
	`
	if _, err = tx.Exec(ctx, updateQuery, string(StatusPaid), paidAt, chargeReference, id); err != nil {
		return nil, fmt.Errorf("repository: failed to mark order %s paid: %w", id, err)
	}

	order.Status = StatusPaid
	order.Paid = true
	order.PaidAt = &paidAt
	order.ChargeReference = chargeReference
	order.UpdatedAt = paidAt

	receiptID, genErr := uuid.NewV4()
	if genErr != nil {
		err = fmt.Errorf("repository: failed to generate receipt id: %w", genErr)
		return nil, err
	}

	receipt := &Receipt{
		ID:         receiptID,
		OrderID:    id,
		ReceiptURL: receiptURL,
		CreatedAt:  paidAt,
	}
	insertQuery := `
		INSERT INTO order_receipts (id, order_id, receipt_url, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err = tx.Exec(ctx, insertQuery, receipt.ID, receipt.OrderID, receipt.ReceiptURL, receipt.CreatedAt); err != nil {
		// The unique index on order_id is the backstop against a racing
		// confirmation that slipped past the row lock.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			err = nil
			log.Warn().Stringer("order_id", id).Msg("repository: receipt already exists for order")
			return order, nil
		}
		return nil, fmt.Errorf("repository: failed to insert receipt for order %s: %w", id, err)
	}

	order.Receipt = receipt

	return order, nil
}
