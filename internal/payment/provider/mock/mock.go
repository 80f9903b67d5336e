package mock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Christian112b/InonicApp/internal/payment/provider"
)

// TestCardLast4 is the suffix the mock reports for every card.
const TestCardLast4 = "4242"

// Gateway is a mock card gateway for development and tests. With decline set
// every confirmation is rejected as a declined card.
type Gateway struct {
	decline bool

	mu      sync.Mutex
	mounted bool
	mounts  atomic.Int32
}

// NewGateway creates a mock gateway.
func NewGateway(decline bool) *Gateway {
	return &Gateway{decline: decline}
}

// Name returns the gateway name.
func (g *Gateway) Name() string {
	return "mock"
}

// Mount mounts the card element once.
func (g *Gateway) Mount(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mounted {
		return nil
	}
	g.mounted = true
	g.mounts.Add(1)
	return nil
}

// Ready reports whether Mount ran.
func (g *Gateway) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mounted
}

// Mounts counts how many times the element was actually created.
func (g *Gateway) Mounts() int {
	return int(g.mounts.Load())
}

// ConfirmCardPayment confirms with the test card, or declines it.
func (g *Gateway) ConfirmCardPayment(ctx context.Context, clientSecret string) (provider.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return provider.Confirmation{}, err
	}
	if !g.Ready() {
		return provider.Confirmation{}, provider.ErrNotReady
	}

	intentID, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || intentID == "" {
		return provider.Confirmation{}, &provider.CardError{
			Code:    "invalid_client_secret",
			Message: "El intento de pago no es válido.",
		}
	}
	if g.decline {
		return provider.Confirmation{}, &provider.CardError{
			Code:    "card_declined",
			Message: "Tu tarjeta fue rechazada.",
		}
	}

	if !strings.HasPrefix(intentID, "pi_") {
		intentID = "pi_" + uuid.New().String()
	}
	return provider.Confirmation{PaymentIntentID: intentID, Last4: TestCardLast4}, nil
}

// Unmount drops the card element.
func (g *Gateway) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mounted = false
}
