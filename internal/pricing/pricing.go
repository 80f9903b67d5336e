// Package pricing computes cart and checkout totals. All arithmetic is
// exact; rounding happens only when a value is displayed or converted to
// minor units.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Christian112b/InonicApp/internal/domain"
)

var (
	// TaxRate is the IVA applied to the subtotal.
	TaxRate = decimal.RequireFromString("0.16")
	// Shipping is the flat shipping fee.
	Shipping = decimal.RequireFromString("50.00")

	hundred = decimal.NewFromInt(100)
)

// Totals is the full checkout breakdown.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Preview is the cart panel breakdown. It has no shipping or discount.
type Preview struct {
	ItemCount       int             `json:"item_count"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	SubtotalWithTax decimal.Decimal `json:"subtotal_with_tax"`
}

// Subtotal sums unit price times quantity over lines.
func Subtotal(lines []domain.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// Tax is subtotal times TaxRate.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(TaxRate)
}

// Discount is what coupon takes off. A percentage coupon takes value% of the
// subtotal; any other kind takes its value. The result never goes below zero
// and never exceeds subtotal plus tax plus shipping.
func Discount(subtotal decimal.Decimal, coupon *domain.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	d := coupon.Value
	if coupon.IsPercentage() {
		d = subtotal.Mul(coupon.Value).Div(hundred)
	}

	ceiling := subtotal.Add(Tax(subtotal)).Add(Shipping)
	switch {
	case d.IsNegative():
		return decimal.Zero
	case d.GreaterThan(ceiling):
		return ceiling
	default:
		return d
	}
}

// GrandTotal is subtotal + tax + shipping - discount, floored at zero.
func GrandTotal(subtotal, tax, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Compute derives the full breakdown for lines and an optional coupon.
func Compute(lines []domain.CartLine, coupon *domain.Coupon) Totals {
	subtotal := Subtotal(lines)
	tax := Tax(subtotal)
	discount := Discount(subtotal, coupon)
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   Shipping,
		Discount:   discount,
		GrandTotal: GrandTotal(subtotal, tax, Shipping, discount),
	}
}

// CartPreview derives the cart panel breakdown.
func CartPreview(lines []domain.CartLine) Preview {
	c := domain.Cart{Lines: lines}
	subtotal := Subtotal(lines)
	tax := Tax(subtotal)
	return Preview{
		ItemCount:       c.ItemCount(),
		Subtotal:        subtotal,
		Tax:             tax,
		SubtotalWithTax: subtotal.Add(tax),
	}
}

// MinorUnits converts an amount to cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Display formats an amount with two decimals.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
