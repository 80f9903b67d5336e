package domain

import "github.com/shopspring/decimal"

// CouponKind is how a coupon's value is applied.
type CouponKind string

const (
	CouponPercentage CouponKind = "porcentaje"
	CouponFixed      CouponKind = "fijo"
)

// Coupon mirrors the backend's discount record.
type Coupon struct {
	ID    int64           `json:"id_descuento"`
	Name  string          `json:"nombre"`
	Kind  CouponKind      `json:"tipo"`
	Value decimal.Decimal `json:"valor"`
}

// IsPercentage reports whether Value is a percentage of the subtotal. Any
// kind other than "porcentaje" is a fixed amount.
func (c Coupon) IsPercentage() bool {
	return c.Kind == CouponPercentage
}
