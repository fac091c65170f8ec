package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/printmint/cardpress/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its print options in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, opts []models.PrintOptions) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback()

	const orderQuery = `
INSERT INTO orders (id, user_id, status, payment_session_id, total_cents)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, orderQuery, order.ID, order.UserID, string(order.Status), order.PaymentSessionID, order.TotalCents); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const optQuery = `
INSERT INTO print_options (order_id, image_metadata_id, image_name, image_src, size, quantity, unit_price_cents)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, opt := range opts {
		if _, err := tx.ExecContext(ctx, optQuery, order.ID, opt.ImageMetadataID, opt.ImageName, opt.ImageSrc, opt.Size, opt.Quantity, opt.UnitPriceCents); err != nil {
			return fmt.Errorf("insert print options: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	const query = `
SELECT id, user_id, status, COALESCE(payment_session_id, ''), total_cents, created_at, updated_at
FROM orders WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *OrderRepository) FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error) {
	const query = `
SELECT id, user_id, status, COALESCE(payment_session_id, ''), total_cents, created_at, updated_at
FROM orders WHERE payment_session_id = ?`
	return r.findOne(ctx, query, sessionID)
}

func (r *OrderRepository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	var o models.Order
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.PaymentSessionID, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	const query = `UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(status), id); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// List returns all orders with their image prompt/url and print options,
// newest first. One entry per order regardless of how many images its print
// options reference.
func (r *OrderRepository) List(ctx context.Context) ([]models.OrderDetail, error) {
	const query = `
SELECT id, user_id, status, COALESCE(payment_session_id, ''), total_cents, created_at, updated_at
FROM orders ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var details []models.OrderDetail
	for rows.Next() {
		var d models.OrderDetail
		var status string
		if err := rows.Scan(&d.Order.ID, &d.Order.UserID, &status, &d.Order.PaymentSessionID,
			&d.Order.TotalCents, &d.Order.CreatedAt, &d.Order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		d.Order.Status = models.OrderStatus(status)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range details {
		if err := r.loadExtras(ctx, &details[i]); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// GetDetail returns one order with image and print options, or nil.
func (r *OrderRepository) GetDetail(ctx context.Context, id string) (*models.OrderDetail, error) {
	order, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}
	detail := models.OrderDetail{Order: *order}
	if err := r.loadExtras(ctx, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// loadExtras attaches the order's print options and the prompt/url of the
// first referenced image.
func (r *OrderRepository) loadExtras(ctx context.Context, detail *models.OrderDetail) error {
	opts, err := r.listPrintOptions(ctx, detail.Order.ID)
	if err != nil {
		return err
	}
	detail.PrintOptions = opts

	for _, opt := range opts {
		if opt.ImageMetadataID == nil {
			continue
		}
		const imgQuery = `SELECT prompt, image_url FROM image_metadata WHERE id = ?`
		row := r.db.QueryRowContext(ctx, imgQuery, *opt.ImageMetadataID)
		if err := row.Scan(&detail.Prompt, &detail.ImageURL); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("scan order image: %w", err)
		}
		break
	}
	return nil
}

func (r *OrderRepository) listPrintOptions(ctx context.Context, orderID string) ([]models.PrintOptions, error) {
	const query = `
SELECT id, order_id, image_metadata_id, COALESCE(image_name, ''), COALESCE(image_src, ''), size, quantity, unit_price_cents
FROM print_options WHERE order_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list print options: %w", err)
	}
	defer rows.Close()

	var opts []models.PrintOptions
	for rows.Next() {
		var opt models.PrintOptions
		var imageID sql.NullInt64
		if err := rows.Scan(&opt.ID, &opt.OrderID, &imageID, &opt.ImageName, &opt.ImageSrc, &opt.Size, &opt.Quantity, &opt.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan print options: %w", err)
		}
		if imageID.Valid {
			opt.ImageMetadataID = &imageID.Int64
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}
