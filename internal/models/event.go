package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Venue     string    `bun:"venue,nullzero" json:"venue,omitempty"`
	StartsAt  time.Time `bun:"starts_at,notnull" json:"startsAt"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// TicketType prices are held in minor units (cents) and in whole pesos for display.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID    int64     `bun:"event_id,notnull" json:"eventId"`
	Name       string    `bun:"name,notnull" json:"name"`
	PriceCents int64     `bun:"price_cents,notnull" json:"priceCents"`
	PricePesos int64     `bun:"price_pesos,notnull" json:"pricePesos"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
}
