package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"cloudtickets/internal/database"
	"cloudtickets/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// RunInTx runs fn in one transaction; any returned error rolls everything back.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, fn)
}

// ---------------- TICKET TYPES ----------------

// GetTicketTypesByIDs → fetch the ticket types for a checkout, unknown ids are simply absent
func (d *DB) GetTicketTypesByIDs(ctx context.Context, idb bun.IDB, ids []int64) ([]models.TicketType, error) {
	var types []models.TicketType
	if len(ids) == 0 {
		return types, nil
	}
	err := idb.NewSelect().
		Model(&types).
		Where("tt.id IN (?)", bun.In(ids)).
		Scan(ctx)
	return types, err
}

// ---------------- ORDERS ----------------

// InsertOrder → insert a new order and fill its generated id
func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewInsert().Model(order).Exec(ctx)
	return err
}

// InsertOrderItems → insert the line items of an order
func (d *DB) InsertOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&items).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("o.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &order, nil
}

// GetOrderByReference → fetch one order by payment reference, optionally taking a row lock
func (d *DB) GetOrderByReference(ctx context.Context, idb bun.IDB, reference string, lock bool) (*models.Order, error) {
	var order models.Order
	q := d.conn(idb).NewSelect().
		Model(&order).
		Where("o.payment_reference = ?", reference).
		Limit(1)
	if lock {
		q = database.ForUpdate(q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.NotFound(err)
	}
	return &order, nil
}

// ListOrdersByUser → all orders of a user, newest first
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("o.user_id = ?", userID).
		Order("o.created_at DESC", "o.id DESC").
		Scan(ctx)
	return orders, err
}

// UpdatePaymentMirror → record the provider's view of the transaction, currency kept when omitted
func (d *DB) UpdatePaymentMirror(ctx context.Context, idb bun.IDB, orderID int64, provider string, txn models.ProviderTransaction) error {
	q := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_provider = ?", provider).
		Set("payment_status = ?", nullable(txn.Status)).
		Set("provider_transaction_id = ?", nullable(txn.ID)).
		Set("payment_amount_cents = ?", txn.AmountInCents).
		Where("id = ?", orderID)
	if txn.Currency != "" {
		q = q.Set("payment_currency = ?", txn.Currency)
	}
	_, err := q.Exec(ctx)
	return err
}

// SetPaid → PENDING to PAID, reports whether this call made the transition
func (d *DB) SetPaid(ctx context.Context, idb bun.IDB, orderID int64, paidAt time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusPaid).
		Set("paid_at = ?", paidAt).
		Where("id = ?", orderID).
		Where("status = ?", models.OrderStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CoalescePaidAt → stamp paid_at on a paid order that somehow lacks one
func (d *DB) CoalescePaidAt(ctx context.Context, idb bun.IDB, orderID int64, now time.Time) error {
	_, err := idb.NewUpdate().
		Model((*models.Order)(nil)).
		Set("paid_at = ?", now).
		Where("id = ?", orderID).
		Where("paid_at IS NULL").
		Exec(ctx)
	return err
}

// ---------------- ORDER ITEMS ----------------

// GetOrderItems → the stored line items of an order
func (d *DB) GetOrderItems(ctx context.Context, idb bun.IDB, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := idb.NewSelect().
		Model(&items).
		Where("oi.order_id = ?", orderID).
		Order("oi.id ASC").
		Scan(ctx)
	return items, err
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
