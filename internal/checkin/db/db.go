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

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, fn)
}

// GetTicketByUniqueCode → the ticket a credential id was issued for
func (d *DB) GetTicketByUniqueCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("t.unique_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &ticket, nil
}

// MarkUsed → ACTIVE to USED compare-and-set, false when the row was no longer ACTIVE
func (d *DB) MarkUsed(ctx context.Context, idb bun.IDB, ticketID int64, usedAt time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusUsed).
		Set("used_at = ?", usedAt).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketStatusActive).
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

// InsertCheckin → append one audit row
func (d *DB) InsertCheckin(ctx context.Context, idb bun.IDB, checkin *models.Checkin) error {
	if idb == nil {
		idb = d.Bun
	}
	_, err := idb.NewInsert().Model(checkin).Exec(ctx)
	return err
}
