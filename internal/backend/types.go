package backend

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/Christian112b/InonicApp/internal/domain"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/httpclient"
)

// Session is the backend's view of the shopper.
type Session struct {
	Active bool
	UserID string
}

// CouponValidation is the outcome of validate-coupon. Message is set when
// the code was rejected.
type CouponValidation struct {
	Valid   bool
	Coupon  domain.Coupon
	Message string
}

// CouponUsage says whether a coupon was already redeemed, and when.
type CouponUsage struct {
	Used      bool
	UsageDate string
}

// IntentRequest is what the payment flow sends to create-payment-intent.
// Amount is in minor units; zero CouponID and AddressID are omitted.
type IntentRequest struct {
	Amount    int64
	Method    domain.PaymentMethod
	CouponID  int64
	AddressID int64
}

// flexString decodes a JSON string or number as a string. The backend sends
// user and payment ids either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ackResponse is the {"ok":..,"mensaje":..} shape most endpoints answer with.
type ackResponse struct {
	OK *bool `json:"ok"`
	httpclient.BackendErrorBody
}

// err turns an explicit ok:false into an error. A missing ok counts as
// success.
func (a ackResponse) err(endpoint string) error {
	if a.OK == nil || *a.OK {
		return nil
	}
	msg := a.Text()
	if msg == "" {
		msg = endpoint + " was rejected"
	}
	return apperrors.InvalidInput(msg)
}

type sessionResponse struct {
	OK     bool       `json:"ok"`
	UserID flexString `json:"user_id"`
}

type addCartRequest struct {
	ProductID int64 `json:"id_producto"`
}

type cartItem struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Image    string      `json:"image"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

func newCartItem(l domain.CartLine) cartItem {
	return cartItem{
		ID:       int64(l.ID),
		Name:     l.Name,
		Image:    l.Image,
		Price:    json.Number(l.UnitPrice.String()),
		Quantity: l.Quantity,
	}
}

type saveCartRequest struct {
	Items []cartItem `json:"items"`
}

type itemsResponse struct {
	ackResponse
	Items json.RawMessage `json:"items"`
}

type addressDTO struct {
	ID           int64  `json:"id"`
	Alias        string `json:"alias"`
	Street       string `json:"calle"`
	Neighborhood string `json:"colonia"`
	City         string `json:"ciudad"`
	State        string `json:"estado"`
	PostalCode   any    `json:"cp"`
}

func (a addressDTO) domain() domain.Address {
	return domain.Address{
		ID:           a.ID,
		Alias:        a.Alias,
		Street:       a.Street,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		PostalCode:   postalCode(a.PostalCode),
	}
}

// postalCode normalizes cp, which some rows store as an integer.
func postalCode(v any) string {
	switch cp := v.(type) {
	case string:
		return cp
	case float64:
		return strconv.FormatFloat(cp, 'f', 0, 64)
	default:
		return ""
	}
}

type addressesResponse struct {
	Addresses []addressDTO `json:"direcciones"`
}

type addAddressRequest struct {
	Alias        string `json:"alias"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
}

type validateCouponRequest struct {
	Name string `json:"coupon_name"`
}

type validateCouponResponse struct {
	OK     bool           `json:"ok"`
	Coupon *domain.Coupon `json:"cupon"`
	httpclient.BackendErrorBody
}

type couponUsageRequest struct {
	UserID   string `json:"user_id"`
	CouponID int64  `json:"coupon_id"`
}

type couponUsageResponse struct {
	Used      bool   `json:"used"`
	UsageDate string `json:"usage_date"`
}

type recordUsageRequest struct {
	UserID    *string `json:"user_id"`
	CouponID  int64   `json:"coupon_id"`
	PaymentID *string `json:"payment_id"`
}

type intentRequest struct {
	Amount    int64  `json:"amount"`
	MethodID  int    `json:"method_id"`
	CouponID  *int64 `json:"cupon_id,omitempty"`
	AddressID *int64 `json:"direccion_id,omitempty"`
}

type intentResponse struct {
	ClientSecret string     `json:"clientSecret"`
	OK           bool       `json:"ok"`
	Status       string     `json:"status"`
	PaymentID    flexString `json:"payment_id"`
	CloseModal   bool       `json:"closeModal"`
	Error        string     `json:"error"`
}
