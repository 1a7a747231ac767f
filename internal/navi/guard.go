package navi

import (
	"fmt"
	"strings"

	"github.com/Checker-Finance/navi/pkg/model"
)

// ValidateShipping checks the fields required before a buyer may approve.
func ValidateShipping(s model.ShippingInfo) error {
	var missing []string
	if blank(s.CompanyName) {
		missing = append(missing, "companyName")
	}
	if blank(s.Address) {
		missing = append(missing, "address")
	}
	if blank(s.Tel) {
		missing = append(missing, "tel")
	}
	if blank(s.PersonName) {
		missing = append(missing, "personName")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// ResolveContact finds the registered contact the shipping person refers to.
// An explicit ContactID must exist; otherwise PersonName is matched by name.
func ResolveContact(s model.ShippingInfo, contacts []model.Contact) (model.Contact, error) {
	if s.ContactID != "" {
		for _, c := range contacts {
			if c.ID == s.ContactID {
				return c, nil
			}
		}
		return model.Contact{}, fmt.Errorf("contact %q: %w", s.ContactID, ErrNotFound)
	}

	name := strings.TrimSpace(s.PersonName)
	for _, c := range contacts {
		if strings.TrimSpace(c.Name) == name {
			return c, nil
		}
	}
	return model.Contact{}, &ValidationError{
		Fields: []string{"personName"},
		Reason: "not a registered contact:",
	}
}

// ValidateItems enforces non-negative quantities and unit prices.
func ValidateItems(items []model.LineItem) error {
	if len(items) == 0 {
		return &ValidationError{Fields: []string{"items"}}
	}
	var bad []string
	for i, it := range items {
		if it.Quantity.Float() < 0 {
			bad = append(bad, fmt.Sprintf("items[%d].quantity", i))
		}
		if it.UnitPrice.Float() < 0 {
			bad = append(bad, fmt.Sprintf("items[%d].unitPrice", i))
		}
		if it.Amount != nil && it.Amount.Float() < 0 {
			bad = append(bad, fmt.Sprintf("items[%d].amount", i))
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad, Reason: "negative"}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
