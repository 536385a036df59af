package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"cloudtickets/internal/credential"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/models"
	"cloudtickets/internal/tickets/qr"
	"cloudtickets/internal/utils"
)

type DBLayer interface {
	GetTicketType(ctx context.Context, idb bun.IDB, id int64) (*models.TicketType, error)
	InsertTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error
	GetTicketView(ctx context.Context, id int64) (*models.TicketView, error)
	ListTicketViewsByOwner(ctx context.Context, userID string) ([]models.TicketView, error)
	ListTicketsByOrder(ctx context.Context, orderID int64) ([]models.Ticket, error)
	AssignNFC(ctx context.Context, id int64, nfcUID string) (*models.Ticket, error)
}

type TicketService struct {
	DB      DBLayer
	Signer  *credential.Signer
	QR      *qr.Generator
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// CredentialTTL stamps an expiry on new credentials when positive.
	CredentialTTL time.Duration

	now   func() time.Time
	newID func() string
}

func NewTicketService(db DBLayer, signer *credential.Signer, log *logger.Logger, m *metrics.Metrics, ttl time.Duration) *TicketService {
	return &TicketService{
		DB:            db,
		Signer:        signer,
		QR:            qr.NewGenerator(),
		Logger:        log,
		Metrics:       m,
		CredentialTTL: ttl,
		now:           time.Now,
		newID:         utils.GenerateCredentialID,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *TicketService) WithClock(now func() time.Time) *TicketService {
	s.now = now
	return s
}

// IssueTickets creates one ACTIVE ticket per purchased unit of a paid order,
// inside the caller's transaction. Items whose ticket type no longer exists are
// skipped: payment has already been captured, so the order is never rolled back
// for them.
func (s *TicketService) IssueTickets(ctx context.Context, tx bun.IDB, order *models.Order, items []models.OrderItem) ([]models.Ticket, error) {
	now := s.now()

	var expiry *int64
	if s.CredentialTTL > 0 {
		exp := now.Add(s.CredentialTTL).Unix()
		expiry = &exp
	}

	holder := credential.Holder{
		Name:  order.BuyerName,
		Email: order.BuyerEmail,
		Phone: order.BuyerPhone,
	}

	var issued []models.Ticket
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}

		ticketType, err := s.DB.GetTicketType(ctx, tx, item.TicketTypeID)
		if errors.Is(err, models.ErrNotFound) {
			s.Logger.Warn("TICKETS", fmt.Sprintf("Order %d: ticket type %d no longer exists, skipping %d units", order.ID, item.TicketTypeID, item.Quantity))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load ticket type %d: %w", item.TicketTypeID, err)
		}

		for i := 0; i < item.Quantity; i++ {
			tid := s.newID()
			payload, err := credential.Encode(s.Signer.NewPayload(tid, ticketType.EventID, expiry, holder))
			if err != nil {
				return nil, fmt.Errorf("encode payload for ticket %s: %w", tid, err)
			}

			issued = append(issued, models.Ticket{
				OrderID:          order.ID,
				TicketTypeID:     ticketType.ID,
				EventID:          ticketType.EventID,
				UniqueCode:       tid,
				QRPayload:        payload,
				Status:           models.TicketStatusActive,
				HolderName:       order.BuyerName,
				HolderEmail:      order.BuyerEmail,
				HolderPhone:      order.BuyerPhone,
				HolderNationalID: order.BuyerNationalID,
				OwnerUserID:      order.UserID,
				CreatedAt:        now,
			})
		}
	}

	if err := s.DB.InsertTickets(ctx, tx, issued); err != nil {
		return nil, fmt.Errorf("insert %d tickets for order %d: %w", len(issued), order.ID, err)
	}

	s.Metrics.Issued(len(issued))
	s.Logger.Info("TICKETS", fmt.Sprintf("Issued %d tickets for order %d", len(issued), order.ID))
	return issued, nil
}

// GetTicket returns a ticket visible to principal. Tickets of other users read as not found.
func (s *TicketService) GetTicket(ctx context.Context, principal models.Principal, id int64) (*models.TicketView, error) {
	view, err := s.DB.GetTicketView(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && view.OwnerUserID != principal.UserID {
		return nil, models.ErrNotFound
	}
	return view, nil
}

func (s *TicketService) ListMyTickets(ctx context.Context, userID string) ([]models.TicketView, error) {
	return s.DB.ListTicketViewsByOwner(ctx, userID)
}

func (s *TicketService) ListOrderTickets(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	return s.DB.ListTicketsByOrder(ctx, orderID)
}

// AssignNFC binds a physical token to a ticket. The signed payload is untouched.
func (s *TicketService) AssignNFC(ctx context.Context, id int64, nfcUID string) (*models.Ticket, error) {
	nfcUID = strings.TrimSpace(nfcUID)
	if nfcUID == "" {
		return nil, models.NewValidationError(models.CodeNoNFCUID, "nfc_uid is required")
	}
	ticket, err := s.DB.AssignNFC(ctx, id, nfcUID)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("TICKETS", fmt.Sprintf("Bound NFC token to ticket %d", id))
	return ticket, nil
}

// QRCode renders the stored payload of a ticket visible to principal.
func (s *TicketService) QRCode(ctx context.Context, principal models.Principal, id int64) ([]byte, error) {
	view, err := s.GetTicket(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	return s.QR.PNG(view.QRPayload)
}
