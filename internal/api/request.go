package api

import (
	"time"

	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

// OpenTradeRequest registers a trade agreed through the offer flow.
type OpenTradeRequest struct {
	NaviID          int64                  `json:"navi_id,omitempty"`
	Seller          model.Party            `json:"seller"`
	Buyer           model.Party            `json:"buyer"`
	Items           []model.LineItem       `json:"items"`
	TaxRate         *float64               `json:"tax_rate,omitempty"`
	PaymentMethod   string                 `json:"payment_method,omitempty"`
	PaymentTerms    string                 `json:"payment_terms,omitempty"`
	Terms           string                 `json:"terms,omitempty"`
	Remarks         string                 `json:"remarks,omitempty"`
	StorageLocation string                 `json:"storage_location,omitempty"`
	Fees            model.Fees             `json:"fees"`
	Schedule        model.Schedule         `json:"schedule"`
	Snapshot        *model.ListingSnapshot `json:"snapshot,omitempty"`
}

// ApproveRequest carries the delivery destination confirmed by the buyer.
type ApproveRequest struct {
	Shipping model.ShippingInfo `json:"shipping"`
}

// MarkPaidRequest optionally backdates the payment.
type MarkPaidRequest struct {
	PaidOn *time.Time `json:"paid_on,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type UpdatePartyRequest struct {
	Address     *string `json:"address,omitempty"`
	ContactName *string `json:"contact_name,omitempty"`
}

type AddContactRequest struct {
	Name string `json:"name"`
}

// TotalsRequest is a stateless totals calculation.
// A missing tax_rate means the default rate; a malformed one counts as zero.
type TotalsRequest struct {
	Items   []model.LineItem `json:"items"`
	TaxRate *money.Number    `json:"tax_rate,omitempty"`
	Fees    model.Fees       `json:"fees"`
}

// TotalsResponse renders totals both as numbers and as yen strings.
type TotalsResponse struct {
	money.Totals
	Display TotalsDisplay `json:"display"`
}

type TotalsDisplay struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Fees     string `json:"fees"`
	Total    string `json:"total"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
	Status string   `json:"status,omitempty"`
}
