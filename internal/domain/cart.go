package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ProductID identifies a catalog product. Older snapshots carry it as a
// JSON string, so both encodings decode.
type ProductID int64

// UnmarshalJSON accepts 12 and "12".
func (id *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("product id %q: %w", b, err)
	}
	*id = ProductID(n)
	return nil
}

func (id ProductID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Product is what the catalog hands to the cart when the shopper taps "add".
type Product struct {
	ID    ProductID       `json:"id"`
	Name  string          `json:"name"`
	Image string          `json:"image"`
	Price decimal.Decimal `json:"price"`
}

// CartLine is one product in the cart. Line identity is the product id.
type CartLine struct {
	ID        ProductID       `json:"id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is unit price times quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines.
type Cart struct {
	Lines []CartLine `json:"items"`
}

// ItemCount returns the sum of quantities.
func (c *Cart) ItemCount() int {
	var count int
	for _, l := range c.Lines {
		count += l.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// FindLine returns the index of the line for id, or -1.
func (c *Cart) FindLine(id ProductID) int {
	for i := range c.Lines {
		if c.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

type rawLine struct {
	ID       *ProductID       `json:"id"`
	Name     *string          `json:"name"`
	Image    *string          `json:"image"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int             `json:"quantity"`
}

func (r rawLine) line() (CartLine, bool) {
	if r.ID == nil || r.Name == nil || r.Price == nil || r.Quantity == nil {
		return CartLine{}, false
	}
	l := CartLine{
		ID:        *r.ID,
		Name:      *r.Name,
		UnitPrice: *r.Price,
		Quantity:  *r.Quantity,
	}
	if r.Image != nil {
		l.Image = *r.Image
	}
	return l, l.Valid()
}

// Valid reports whether l can live in a cart: an id, a name, a price that is
// not negative and a positive quantity.
func (l CartLine) Valid() bool {
	return l.ID != 0 && l.Name != "" && !l.UnitPrice.IsNegative() && l.Quantity > 0
}

// NormalizeLines drops invalid lines and folds lines that share an id into
// the first one, summing quantities. dropped counts both.
func NormalizeLines(lines []CartLine) (clean []CartLine, dropped int) {
	clean = make([]CartLine, 0, len(lines))
	index := make(map[ProductID]int, len(lines))
	for _, l := range lines {
		if !l.Valid() {
			dropped++
			continue
		}
		if i, ok := index[l.ID]; ok {
			clean[i].Quantity += l.Quantity
			dropped++
			continue
		}
		index[l.ID] = len(clean)
		clean = append(clean, l)
	}
	return clean, dropped
}

// ParseLines decodes a JSON array of cart lines, dropping every element that
// lacks an id, a name or a price, has a negative price or a non-positive
// quantity. Repeated ids are merged as in NormalizeLines. It fails only when
// data is not a JSON array at all.
func ParseLines(data []byte) (lines []CartLine, dropped int, err error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, 0, fmt.Errorf("decode cart lines: %w", err)
	}

	lines = make([]CartLine, 0, len(elems))
	for _, e := range elems {
		var r rawLine
		if json.Unmarshal(e, &r) != nil {
			dropped++
			continue
		}
		l, ok := r.line()
		if !ok {
			dropped++
			continue
		}
		lines = append(lines, l)
	}
	lines, merged := NormalizeLines(lines)
	return lines, dropped + merged, nil
}
