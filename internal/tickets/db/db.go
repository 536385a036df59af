package db

import (
	"context"

	"github.com/uptrace/bun"

	"cloudtickets/internal/database"
	"cloudtickets/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetTicketType → one ticket type, models.ErrNotFound when it was deleted
func (d *DB) GetTicketType(ctx context.Context, idb bun.IDB, id int64) (*models.TicketType, error) {
	var tt models.TicketType
	err := idb.NewSelect().
		Model(&tt).
		Where("tt.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &tt, nil
}

// InsertTickets → bulk insert of freshly issued tickets
func (d *DB) InsertTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

// GetTicketView → a ticket with its type and event names
func (d *DB) GetTicketView(ctx context.Context, id int64) (*models.TicketView, error) {
	var view models.TicketView
	err := d.viewQuery(&view).
		Where("t.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &view, nil
}

// ListTicketViewsByOwner → every ticket owned by a user, newest first
func (d *DB) ListTicketViewsByOwner(ctx context.Context, userID string) ([]models.TicketView, error) {
	var views []models.TicketView
	err := d.viewQuery(&views).
		Where("t.owner_user_id = ?", userID).
		Order("t.created_at DESC", "t.id DESC").
		Scan(ctx)
	return views, err
}

// ListTicketsByOrder → tickets issued for an order
func (d *DB) ListTicketsByOrder(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("t.order_id = ?", orderID).
		Order("t.id ASC").
		Scan(ctx)
	return tickets, err
}

// AssignNFC → bind a physical token id to a ticket
func (d *DB) AssignNFC(ctx context.Context, id int64, nfcUID string) (*models.Ticket, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("nfc_uid = ?", nfcUID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, models.ErrNotFound
	}

	var ticket models.Ticket
	if err := d.Bun.NewSelect().Model(&ticket).Where("t.id = ?", id).Scan(ctx); err != nil {
		return nil, database.NotFound(err)
	}
	return &ticket, nil
}

func (d *DB) viewQuery(model interface{}) *bun.SelectQuery {
	return d.Bun.NewSelect().
		Model(model).
		ColumnExpr("t.*").
		ColumnExpr("tt.name AS ticket_type_name").
		ColumnExpr("e.name AS event_name").
		Join("LEFT JOIN ticket_types AS tt ON tt.id = t.ticket_type_id").
		Join("LEFT JOIN events AS e ON e.id = t.event_id")
}
