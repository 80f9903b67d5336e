package domain

import "fmt"

// PaymentMethod is the shopper's choice on the payment tab.
type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodCash     PaymentMethod = "cash"
)

// PaymentMethods lists the methods in the order they are offered.
var PaymentMethods = []PaymentMethod{MethodCard, MethodTransfer, MethodCash}

var methodIDs = map[PaymentMethod]int{
	MethodCard:     1,
	MethodTransfer: 4,
	MethodCash:     5,
}

var methodLabels = map[PaymentMethod]string{
	MethodCard:     "Tarjeta de Crédito/Débito",
	MethodTransfer: "Transferencia Bancaria",
	MethodCash:     "Pago en Efectivo (contra entrega)",
}

// ParsePaymentMethod validates a method name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if _, ok := methodIDs[m]; !ok {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

// BackendID is the backend's numeric id for the method.
func (m PaymentMethod) BackendID() int {
	return methodIDs[m]
}

// Label is the human-readable method name.
func (m PaymentMethod) Label() string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return "-"
}

// StatusPending is the intent status for offline methods.
const StatusPending = "pendiente"

// PaymentIntent is the backend's answer to create-payment-intent.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status,omitempty"`
	PaymentID    string `json:"payment_id,omitempty"`
	CloseModal   bool   `json:"closeModal,omitempty"`
}

// Pending reports an offline order that needs no card confirmation.
func (p PaymentIntent) Pending() bool {
	return p.Status == StatusPending
}

// UnknownCardSuffix is shown when the last four digits are not known.
const UnknownCardSuffix = "XXXX"

// MaskCard renders a last-four suffix as a masked card number.
func MaskCard(last4 string) string {
	if last4 == "" {
		last4 = UnknownCardSuffix
	}
	return "**** **** **** " + last4
}
