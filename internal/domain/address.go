package domain

import "fmt"

// Address is a saved shipping address.
type Address struct {
	ID           int64  `json:"id,omitempty"`
	Alias        string `json:"alias" validate:"notblank,max=50"`
	Street       string `json:"street" validate:"notblank,max=100"`
	Neighborhood string `json:"neighborhood" validate:"notblank,max=100"`
	City         string `json:"city" validate:"notblank,max=100"`
	State        string `json:"state" validate:"notblank,max=100"`
	PostalCode   string `json:"postalCode" validate:"postalcode"`
}

// Label renders the address the way the confirm tab shows it.
func (a Address) Label() string {
	alias := a.Alias
	if alias == "" {
		alias = "Dirección"
	}
	return fmt.Sprintf("%s %s %s, %s, %s C.P. %s",
		alias, a.Street, a.Neighborhood, a.City, a.State, a.PostalCode)
}
