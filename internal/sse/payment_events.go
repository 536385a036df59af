// Package sse fans order payment updates out to Server-Sent Events clients.
package sse

import (
	"context"
	"sync"

	"cloudtickets/internal/models"
)

const clientBuffer = 10

// PaymentEvents keeps the open payment-result streams, keyed by payment reference.
type PaymentEvents struct {
	mu      sync.RWMutex
	clients map[string][]chan models.OrderUpdate
}

func NewPaymentEvents() *PaymentEvents {
	return &PaymentEvents{clients: make(map[string][]chan models.OrderUpdate)}
}

// Subscribe registers a stream for reference. The channel is closed once ctx is done.
func (e *PaymentEvents) Subscribe(ctx context.Context, reference string) <-chan models.OrderUpdate {
	ch := make(chan models.OrderUpdate, clientBuffer)

	e.mu.Lock()
	e.clients[reference] = append(e.clients[reference], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(reference, ch)
	}()

	return ch
}

// PublishOrderUpdate broadcasts to every stream of the update's reference.
// Slow clients miss the update instead of blocking the webhook.
func (e *PaymentEvents) PublishOrderUpdate(update models.OrderUpdate) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[update.Reference] {
		select {
		case ch <- update:
		default:
		}
	}
}

// ClientCount returns the number of open streams for reference.
func (e *PaymentEvents) ClientCount(reference string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[reference])
}

func (e *PaymentEvents) remove(reference string, ch chan models.OrderUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[reference]
	for i, c := range clients {
		if c == ch {
			e.clients[reference] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[reference]) == 0 {
		delete(e.clients, reference)
	}
}
