package navi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

// Terms are the live negotiated values compared against the listing snapshot.
type Terms struct {
	Quantity        *money.Number
	UnitPrice       *money.Number
	StorageLocation *string
}

// DiffNotes describe drift between a trade and its listing. Empty fields mean no drift.
type DiffNotes struct {
	Quantity  string `json:"quantity_note,omitempty"`
	UnitPrice string `json:"unit_price_note,omitempty"`
	Storage   string `json:"storage_note,omitempty"`
}

// Empty reports whether no note was produced.
func (d DiffNotes) Empty() bool {
	return d.Quantity == "" && d.UnitPrice == "" && d.Storage == ""
}

// TermsOf copies the compared values out of t: quantity and unit price of the
// primary line item, and the agreed storage location.
func TermsOf(t *model.Trade) Terms {
	var terms Terms
	if t == nil {
		return terms
	}
	if len(t.Items) > 0 {
		q, p := t.Items[0].Quantity, t.Items[0].UnitPrice
		terms.Quantity, terms.UnitPrice = &q, &p
	}
	if loc := strings.TrimSpace(t.StorageLocation); loc != "" {
		terms.StorageLocation = &loc
	}
	return terms
}

// BuildDiffNotes compares current against snapshot. A nil snapshot yields no notes.
func BuildDiffNotes(current Terms, snapshot *model.ListingSnapshot) DiffNotes {
	var notes DiffNotes
	if snapshot == nil {
		return notes
	}

	if snapshot.Quantity != nil && current.Quantity != nil &&
		snapshot.Quantity.Float() != current.Quantity.Float() {
		notes.Quantity = fmt.Sprintf("listing quantity differs from agreed quantity: snapshot %s vs current %s",
			formatQty(*snapshot.Quantity), formatQty(*current.Quantity))
	}

	if snapshot.UnitPrice != nil && current.UnitPrice != nil &&
		snapshot.UnitPrice.Float() != current.UnitPrice.Float() {
		notes.UnitPrice = fmt.Sprintf("listing unit price differs from agreed unit price: snapshot %s vs current %s",
			formatYen(*snapshot.UnitPrice), formatYen(*current.UnitPrice))
	}

	if snapshot.StorageLocation != nil && current.StorageLocation != nil {
		was, now := strings.TrimSpace(*snapshot.StorageLocation), strings.TrimSpace(*current.StorageLocation)
		if was != "" && now != "" && was != now {
			notes.Storage = fmt.Sprintf("listing storage location differs from agreed location: snapshot %q vs current %q", was, now)
		}
	}

	return notes
}

func formatQty(n money.Number) string {
	return strconv.FormatFloat(n.Float(), 'f', -1, 64)
}

func formatYen(n money.Number) string {
	return money.FormatYen(decimal.NewFromFloat(n.Float()))
}
