package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"cloudtickets/internal/database"
	"cloudtickets/internal/models"
	"cloudtickets/internal/tickets/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	return &db.DB{Bun: bunDB}, bunDB
}

// seedCatalog inserts one event with a single ticket type.
func seedCatalog(t *testing.T, bunDB *bun.DB) (*models.Event, *models.TicketType) {
	t.Helper()
	ctx := context.Background()
	event := &models.Event{Name: "Festival Estéreo", StartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC), CreatedAt: time.Now()}
	_, err := bunDB.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	tt := &models.TicketType{EventID: event.ID, Name: "General", PriceCents: 15000, PricePesos: 150, CreatedAt: time.Now()}
	_, err = bunDB.NewInsert().Model(tt).Exec(ctx)
	require.NoError(t, err)
	return event, tt
}

func newTickets(n int, orderID int64, tt *models.TicketType, owner string, createdAt time.Time) []models.Ticket {
	out := make([]models.Ticket, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Ticket{
			OrderID:      orderID,
			TicketTypeID: tt.ID,
			EventID:      tt.EventID,
			UniqueCode:   fmt.Sprintf("tid-%d-%d", orderID, i),
			QRPayload:    `{"t":"TICKET"}`,
			Status:       models.TicketStatusActive,
			OwnerUserID:  owner,
			CreatedAt:    createdAt.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestGetTicketType(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	_, tt := seedCatalog(t, bunDB)
	ctx := context.Background()

	got, err := ticketDB.GetTicketType(ctx, bunDB, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, "General", got.Name)

	_, err = ticketDB.GetTicketType(ctx, bunDB, tt.ID+100)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInsertAndListTickets(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	event, tt := seedCatalog(t, bunDB)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ticketDB.InsertTickets(ctx, bunDB, newTickets(2, 10, tt, "user-1", now)))
	require.NoError(t, ticketDB.InsertTickets(ctx, bunDB, newTickets(1, 11, tt, "user-2", now)))
	require.NoError(t, ticketDB.InsertTickets(ctx, bunDB, nil))

	byOrder, err := ticketDB.ListTicketsByOrder(ctx, 10)
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	assert.Equal(t, "tid-10-0", byOrder[0].UniqueCode)

	views, err := ticketDB.ListTicketViewsByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "tid-10-1", views[0].UniqueCode, "newest first")
	assert.Equal(t, "General", views[0].TicketTypeName)
	assert.Equal(t, event.Name, views[0].EventName)

	view, err := ticketDB.GetTicketView(ctx, byOrder[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", view.OwnerUserID)
	assert.Equal(t, event.Name, view.EventName)

	_, err = ticketDB.GetTicketView(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUniqueCodeIsUnique(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	_, tt := seedCatalog(t, bunDB)
	ctx := context.Background()

	batch := newTickets(1, 10, tt, "user-1", time.Now())
	require.NoError(t, ticketDB.InsertTickets(ctx, bunDB, batch))
	assert.Error(t, ticketDB.InsertTickets(ctx, bunDB, newTickets(1, 10, tt, "user-1", time.Now())))
}

func TestAssignNFC(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	_, tt := seedCatalog(t, bunDB)
	ctx := context.Background()

	batch := newTickets(1, 10, tt, "user-1", time.Now())
	require.NoError(t, ticketDB.InsertTickets(ctx, bunDB, batch))
	stored, err := ticketDB.ListTicketsByOrder(ctx, 10)
	require.NoError(t, err)

	got, err := ticketDB.AssignNFC(ctx, stored[0].ID, "04:A2:2B:91")
	require.NoError(t, err)
	assert.Equal(t, "04:A2:2B:91", got.NFCUID)
	assert.Equal(t, stored[0].QRPayload, got.QRPayload)

	// rebinding replaces the token
	got, err = ticketDB.AssignNFC(ctx, stored[0].ID, "04:FF:00:01")
	require.NoError(t, err)
	assert.Equal(t, "04:FF:00:01", got.NFCUID)

	_, err = ticketDB.AssignNFC(ctx, 9999, "04:00")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
