package provider

import (
	"context"
	"errors"
)

// ErrNotReady is returned when confirmation is attempted before the card
// element is mounted.
var ErrNotReady = errors.New("card element is not mounted")

// CardError is a failure the card SDK reports for the card itself, such as a
// decline. It is shown next to the card input and the payment can be retried.
type CardError struct {
	Code    string
	Message string
}

func (e *CardError) Error() string {
	return e.Code + ": " + e.Message
}

// Confirmation is what the SDK reports for a confirmed payment.
type Confirmation struct {
	// PaymentIntentID is the SDK's id for the confirmed intent.
	PaymentIntentID string
	// Last4 is the card's last four digits. Empty when the SDK did not say.
	Last4 string
}

// CardGateway is the hosted card-input and confirmation SDK.
type CardGateway interface {
	// Name returns the gateway name (e.g., "mock", "stripe").
	Name() string

	// Mount creates the card input element. Mounting twice is a no-op.
	Mount(ctx context.Context) error

	// Ready reports whether the card element is mounted.
	Ready() bool

	// ConfirmCardPayment confirms the intent behind clientSecret with the
	// mounted card. Card problems come back as *CardError.
	ConfirmCardPayment(ctx context.Context, clientSecret string) (Confirmation, error)

	// Unmount tears the card element down.
	Unmount()
}
