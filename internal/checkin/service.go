package checkin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/bun"

	"cloudtickets/internal/credential"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
	"cloudtickets/internal/utils"
)

var errLostRace = errors.New("checkin: ticket was redeemed concurrently")

type DBLayer interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	GetTicketByUniqueCode(ctx context.Context, code string) (*models.Ticket, error)
	MarkUsed(ctx context.Context, idb bun.IDB, ticketID int64, usedAt time.Time) (bool, error)
	InsertCheckin(ctx context.Context, idb bun.IDB, checkin *models.Checkin) error
}

// Validator redeems presented credentials at most once per ticket and keeps an
// audit row for every attempt that got past structural checks.
type Validator struct {
	DB      DBLayer
	Signer  *credential.Signer
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	now     func() time.Time
}

func NewValidator(db DBLayer, signer *credential.Signer, log *logger.Logger, m *metrics.Metrics) *Validator {
	return &Validator{
		DB:      db,
		Signer:  signer,
		Logger:  log,
		Metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks the payload a device scanned and redeems the ticket it names.
// The returned result always carries the HTTP status to answer with.
func (v *Validator) Validate(ctx context.Context, device *models.Device, raw []byte) models.ValidationResult {
	payload, normalized, err := credential.Parse(raw)
	if err != nil {
		reason := models.ReasonInvalidPayload
		if errors.Is(err, credential.ErrInvalidType) {
			reason = models.ReasonInvalidType
		}
		v.Metrics.Checkin(models.CheckinInvalid, reason)
		return models.ValidationResult{Reason: reason, StatusCode: http.StatusBadRequest}
	}

	audit := models.Checkin{DeviceID: device.ID, RawPayload: string(normalized)}

	if !v.Signer.VerifyPayload(*payload) {
		v.Logger.LogSecurity("BAD_SIGNATURE", fmt.Sprintf("device %d presented credential %s with a bad signature", device.ID, payload.TicketID))
		return v.reject(ctx, audit, models.CheckinInvalid, models.ReasonBadSignature, http.StatusBadRequest)
	}

	if utils.Expired(payload.Expiry, v.now()) {
		return v.reject(ctx, audit, models.CheckinInvalid, models.ReasonExpired, http.StatusBadRequest)
	}

	ticket, err := v.DB.GetTicketByUniqueCode(ctx, payload.TicketID)
	if errors.Is(err, models.ErrNotFound) {
		return v.reject(ctx, audit, models.CheckinInvalid, models.ReasonNotFound, http.StatusNotFound)
	}
	if err != nil {
		return v.serverError(fmt.Errorf("resolve credential %s: %w", payload.TicketID, err))
	}

	audit.TicketID = &ticket.ID

	if ticket.Status != models.TicketStatusActive {
		return v.rejectTicket(ctx, audit, ticket)
	}

	usedAt := v.now().UTC()
	err = v.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := v.DB.MarkUsed(ctx, tx, ticket.ID, usedAt)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		audit.Result = models.CheckinValid
		audit.Reason = models.ReasonOK
		audit.CreatedAt = usedAt
		return v.DB.InsertCheckin(ctx, tx, &audit)
	})
	if errors.Is(err, errLostRace) {
		// another device redeemed it between the read and the update
		current, err := v.DB.GetTicketByUniqueCode(ctx, payload.TicketID)
		if err != nil {
			return v.serverError(fmt.Errorf("reload ticket %d: %w", ticket.ID, err))
		}
		if current.Status == models.TicketStatusActive {
			return v.serverError(fmt.Errorf("ticket %d still active after a failed redemption", ticket.ID))
		}
		return v.rejectTicket(ctx, audit, current)
	}
	if err != nil {
		return v.serverError(fmt.Errorf("redeem ticket %d: %w", ticket.ID, err))
	}

	v.Metrics.Checkin(models.CheckinValid, models.ReasonOK)
	v.Logger.LogCheckin(models.CheckinValid, models.ReasonOK, fmt.Sprintf("ticket %d redeemed by device %d", ticket.ID, device.ID))
	return models.ValidationResult{
		Valid:      true,
		Reason:     models.ReasonOK,
		EventID:    payload.EventID,
		StatusCode: http.StatusOK,
	}
}

// rejectTicket answers for a resolved ticket that is not redeemable.
func (v *Validator) rejectTicket(ctx context.Context, audit models.Checkin, ticket *models.Ticket) models.ValidationResult {
	if ticket.Status == models.TicketStatusUsed {
		res := v.reject(ctx, audit, models.CheckinDuplicate, models.ReasonAlreadyUsed, http.StatusOK)
		if res.Reason == models.ReasonAlreadyUsed {
			res.UsedAt = ticket.UsedAt
		}
		return res
	}
	return v.reject(ctx, audit, models.CheckinInvalid, models.ReasonInactive, http.StatusOK)
}

func (v *Validator) reject(ctx context.Context, audit models.Checkin, result, reason string, status int) models.ValidationResult {
	audit.Result = result
	audit.Reason = reason
	audit.CreatedAt = v.now().UTC()
	if err := v.DB.InsertCheckin(ctx, nil, &audit); err != nil {
		return v.serverError(fmt.Errorf("record %s checkin: %w", reason, err))
	}

	v.Metrics.Checkin(result, reason)
	v.Logger.LogCheckin(result, reason, fmt.Sprintf("device %d rejected", audit.DeviceID))
	return models.ValidationResult{Reason: reason, StatusCode: status}
}

func (v *Validator) serverError(err error) models.ValidationResult {
	v.Metrics.Checkin(models.CheckinInvalid, models.ReasonServerError)
	v.Logger.Error("CHECKIN", err.Error())
	return models.ValidationResult{Reason: models.ReasonServerError, StatusCode: http.StatusInternalServerError}
}
