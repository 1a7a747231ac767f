package navi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

// ComputeTotals applies the calculator to a trade, fees included.
func ComputeTotals(t *model.Trade) money.Totals {
	return money.Compute(t.Lines(), t.TaxRate, t.Fees.Shipping, t.Fees.Insurance)
}

// StatementLine is a line item with its resolved amount.
type StatementLine struct {
	model.LineItem
	LineAmount decimal.Decimal `json:"line_amount"`
}

// Statement is the data behind the settlement document shown to both parties.
type Statement struct {
	TradeID         string             `json:"trade_id"`
	NaviID          int64              `json:"navi_id,omitempty"`
	Status          model.Status       `json:"status"`
	Seller          model.Party        `json:"seller"`
	Buyer           model.Party        `json:"buyer"`
	Lines           []StatementLine    `json:"lines"`
	TaxRate         float64            `json:"tax_rate"`
	Fees            model.Fees         `json:"fees"`
	Totals          money.Totals       `json:"totals"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	PaymentTerms    string             `json:"payment_terms,omitempty"`
	Terms           string             `json:"terms,omitempty"`
	Remarks         string             `json:"remarks,omitempty"`
	StorageLocation string             `json:"storage_location,omitempty"`
	Schedule        model.Schedule     `json:"schedule"`
	Shipping        model.ShippingInfo `json:"shipping"`
	Notes           DiffNotes          `json:"notes"`
	IssuedAt        time.Time          `json:"issued_at"`
}

// BuildStatement assembles the settlement document from the trade's current state.
func BuildStatement(t *model.Trade, issuedAt time.Time) Statement {
	lines := make([]StatementLine, 0, len(t.Items))
	for _, it := range t.Items {
		lines = append(lines, StatementLine{LineItem: it, LineAmount: it.Line().Value()})
	}

	return Statement{
		TradeID:         t.ID,
		NaviID:          t.NaviID,
		Status:          t.Status,
		Seller:          t.Seller,
		Buyer:           t.Buyer,
		Lines:           lines,
		TaxRate:         t.TaxRate,
		Fees:            t.Fees,
		Totals:          ComputeTotals(t),
		PaymentMethod:   t.PaymentMethod,
		PaymentTerms:    t.PaymentTerms,
		Terms:           t.Terms,
		Remarks:         t.Remarks,
		StorageLocation: t.StorageLocation,
		Schedule:        t.Schedule,
		Shipping:        t.Shipping,
		Notes:           BuildDiffNotes(TermsOf(t), t.Snapshot),
		IssuedAt:        issuedAt,
	}
}
