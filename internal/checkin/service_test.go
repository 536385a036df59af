package checkin

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/sync/errgroup"

	"cloudtickets/internal/checkin/db"
	"cloudtickets/internal/credential"
	"cloudtickets/internal/database"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

var (
	testNow = time.Date(2026, 5, 9, 19, 30, 0, 0, time.UTC)
	gate    = &models.Device{ID: 3, Name: "gate-3", Active: true}
)

type fixture struct {
	bun       *bun.DB
	store     *db.DB
	signer    *credential.Signer
	validator *Validator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	signer, err := credential.NewSigner("test_ticket_secret")
	require.NoError(t, err)

	store := &db.DB{Bun: bunDB}
	v := NewValidator(store, signer, logger.NewWriterLogger(io.Discard), nil).
		WithClock(func() time.Time { return testNow })

	return &fixture{bun: bunDB, store: store, signer: signer, validator: v}
}

// issue stores a ticket for tid and returns its serialized payload.
func (f *fixture) issue(t *testing.T, tid, status string, expiry *int64) (*models.Ticket, string) {
	t.Helper()
	payload, err := credential.Encode(f.signer.NewPayload(tid, 7, expiry, credential.Holder{Name: "Ana Ruiz"}))
	require.NoError(t, err)

	ticket := &models.Ticket{
		OrderID:      1,
		TicketTypeID: 1,
		EventID:      7,
		UniqueCode:   tid,
		QRPayload:    payload,
		Status:       status,
		HolderName:   "Ana Ruiz",
		CreatedAt:    testNow.Add(-24 * time.Hour),
	}
	_, err = f.bun.NewInsert().Model(ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket, payload
}

func (f *fixture) checkins(t *testing.T) []models.Checkin {
	t.Helper()
	var rows []models.Checkin
	require.NoError(t, f.bun.NewSelect().Model(&rows).Order("c.id ASC").Scan(context.Background()))
	return rows
}

func TestValidate_RedeemThenDuplicateThenNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ticket, payload := f.issue(t, "tid-a", models.TicketStatusActive, nil)

	res := f.validator.Validate(ctx, gate, []byte(payload))
	assert.Equal(t, models.ValidationResult{Valid: true, Reason: models.ReasonOK, EventID: 7, StatusCode: http.StatusOK}, res)

	var stored models.Ticket
	require.NoError(t, f.bun.NewSelect().Model(&stored).Where("t.id = ?", ticket.ID).Scan(ctx))
	assert.Equal(t, models.TicketStatusUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)
	assert.True(t, stored.UsedAt.Equal(testNow))

	res = f.validator.Validate(ctx, gate, []byte(payload))
	assert.False(t, res.Valid)
	assert.Equal(t, models.ReasonAlreadyUsed, res.Reason)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, res.UsedAt)
	assert.True(t, res.UsedAt.Equal(testNow))

	forged, err := credential.Encode(f.signer.NewPayload("never-issued", 7, nil, credential.Holder{}))
	require.NoError(t, err)
	res = f.validator.Validate(ctx, gate, []byte(forged))
	assert.Equal(t, models.ReasonNotFound, res.Reason)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	rows := f.checkins(t)
	require.Len(t, rows, 3)
	assert.Equal(t, models.CheckinValid, rows[0].Result)
	assert.Equal(t, models.ReasonOK, rows[0].Reason)
	assert.Equal(t, &ticket.ID, rows[0].TicketID)
	assert.Equal(t, gate.ID, rows[0].DeviceID)
	assert.Equal(t, models.CheckinDuplicate, rows[1].Result)
	assert.Equal(t, models.ReasonAlreadyUsed, rows[1].Reason)
	assert.Equal(t, &ticket.ID, rows[1].TicketID)
	assert.Equal(t, models.CheckinInvalid, rows[2].Result)
	assert.Equal(t, models.ReasonNotFound, rows[2].Reason)
	assert.Nil(t, rows[2].TicketID)
}

func TestValidate_ConcurrentScansRedeemOnce(t *testing.T) {
	f := setup(t)
	_, payload := f.issue(t, "tid-race", models.TicketStatusActive, nil)

	var valid, duplicate atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res := f.validator.Validate(context.Background(), gate, []byte(payload))
			switch {
			case res.Valid:
				valid.Add(1)
			case res.Reason == models.ReasonAlreadyUsed:
				duplicate.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), valid.Load())
	assert.Equal(t, int32(7), duplicate.Load())

	rows := f.checkins(t)
	assert.Len(t, rows, 8)
	var validRows int
	for _, row := range rows {
		if row.Result == models.CheckinValid {
			validRows++
		}
	}
	assert.Equal(t, 1, validRows)
}

// staleReads serves an ACTIVE snapshot on the first lookup, as if another
// device redeemed the ticket right after it was read.
type staleReads struct {
	*db.DB
	calls atomic.Int32
}

func (s *staleReads) GetTicketByUniqueCode(ctx context.Context, code string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByUniqueCode(ctx, code)
	if err == nil && s.calls.Add(1) == 1 {
		ticket.Status = models.TicketStatusActive
		ticket.UsedAt = nil
	}
	return ticket, err
}

func TestValidate_LostRaceReportsDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ticket, payload := f.issue(t, "tid-lost", models.TicketStatusUsed, nil)
	usedAt := testNow.Add(-time.Minute)
	_, err := f.bun.NewUpdate().Model((*models.Ticket)(nil)).Set("used_at = ?", usedAt).Where("id = ?", ticket.ID).Exec(ctx)
	require.NoError(t, err)

	v := NewValidator(&staleReads{DB: f.store}, f.signer, logger.NewWriterLogger(io.Discard), nil).
		WithClock(func() time.Time { return testNow })

	res := v.Validate(ctx, gate, []byte(payload))
	assert.False(t, res.Valid)
	assert.Equal(t, models.ReasonAlreadyUsed, res.Reason)
	require.NotNil(t, res.UsedAt)
	assert.True(t, res.UsedAt.Equal(usedAt))

	rows := f.checkins(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.CheckinDuplicate, rows[0].Result)
}

func TestValidate_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, active := f.issue(t, "tid-ok", models.TicketStatusActive, nil)
	inactiveTicket, inactive := f.issue(t, "tid-off", models.TicketStatusInactive, nil)
	past := testNow.Add(-time.Hour).Unix()
	_, expired := f.issue(t, "tid-old", models.TicketStatusActive, &past)

	var tampered map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(active), &tampered))
	tampered["eid"] = 8
	badSig, err := json.Marshal(tampered)
	require.NoError(t, err)

	cases := []struct {
		name    string
		raw     string
		reason  string
		status  int
		audited bool
	}{
		{"wrong type", `{"t":"COUPON","tid":"x","eid":1,"sig":"ab"}`, models.ReasonInvalidType, http.StatusBadRequest, false},
		{"not an object", `42`, models.ReasonInvalidType, http.StatusBadRequest, false},
		{"missing sig", `{"t":"TICKET","tid":"x","eid":1}`, models.ReasonInvalidPayload, http.StatusBadRequest, false},
		{"bad signature", string(badSig), models.ReasonBadSignature, http.StatusBadRequest, true},
		{"expired", expired, models.ReasonExpired, http.StatusBadRequest, true},
		{"inactive", inactive, models.ReasonInactive, http.StatusOK, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(f.checkins(t))

			res := f.validator.Validate(ctx, gate, []byte(tc.raw))
			assert.False(t, res.Valid)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, tc.status, res.StatusCode)

			rows := f.checkins(t)
			if !tc.audited {
				assert.Len(t, rows, before)
				return
			}
			require.Len(t, rows, before+1)
			last := rows[len(rows)-1]
			assert.Equal(t, tc.reason, last.Reason)
			assert.NotEmpty(t, last.RawPayload)
		})
	}

	rows := f.checkins(t)
	for _, row := range rows {
		switch row.Reason {
		case models.ReasonBadSignature, models.ReasonExpired:
			assert.Nil(t, row.TicketID)
		case models.ReasonInactive:
			assert.Equal(t, &inactiveTicket.ID, row.TicketID)
		}
	}
}

func TestValidate_AcceptsSerializedPayload(t *testing.T) {
	f := setup(t)
	_, payload := f.issue(t, "tid-str", models.TicketStatusActive, nil)

	quoted, err := json.Marshal(payload)
	require.NoError(t, err)

	res := f.validator.Validate(context.Background(), gate, quoted)
	assert.True(t, res.Valid)

	rows := f.checkins(t)
	require.Len(t, rows, 1)
	assert.JSONEq(t, payload, rows[0].RawPayload)
}

func TestValidate_HolderFieldsAreNotSigned(t *testing.T) {
	f := setup(t)
	_, payload := f.issue(t, "tid-holder", models.TicketStatusActive, nil)

	var p map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &p))
	p["hn"] = "Someone Else"
	edited, err := json.Marshal(p)
	require.NoError(t, err)

	res := f.validator.Validate(context.Background(), gate, edited)
	assert.True(t, res.Valid, "holder name is display data, only tid/eid/exp are signed")
}
