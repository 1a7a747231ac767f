package model

import (
	"strings"
	"time"

	"github.com/Checker-Finance/navi/pkg/money"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusApprovalRequired Status = "APPROVAL_REQUIRED"
	StatusPaymentRequired  Status = "PAYMENT_REQUIRED"
	StatusConfirmRequired  Status = "CONFIRM_REQUIRED"
	StatusCompleted        Status = "COMPLETED"
	StatusCanceled         Status = "CANCELED"
)

// Statuses lists every status in forward order, the cancellation exit last.
var Statuses = []Status{
	StatusApprovalRequired,
	StatusPaymentRequired,
	StatusConfirmRequired,
	StatusCompleted,
	StatusCanceled,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusApprovalRequired, StatusPaymentRequired, StatusConfirmRequired, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Role is the side a participant plays in a trade.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// RoleFromString parses a role, case-insensitively. ok is false for unknown values.
func RoleFromString(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSeller:
		return RoleSeller, true
	default:
		return "", false
	}
}

// Party is one side of a trade.
type Party struct {
	UserID      string `json:"user_id"`
	CompanyName string `json:"company_name"`
	Address     string `json:"address,omitempty"`
	ContactName string `json:"contact_name,omitempty"`
}

// LineItem is one machine line on a trade.
type LineItem struct {
	Maker     string        `json:"maker"`
	Name      string        `json:"name"`
	Category  string        `json:"category,omitempty"` // e.g. "pachinko", "slot"
	Quantity  money.Number  `json:"quantity"`
	UnitPrice money.Number  `json:"unit_price"`
	Amount    *money.Number `json:"amount,omitempty"`
	Note      string        `json:"note,omitempty"`
}

// Line returns the numeric view used by the totals calculator.
func (i LineItem) Line() money.Line {
	return money.Line{Quantity: i.Quantity, UnitPrice: i.UnitPrice, Amount: i.Amount}
}

// Fees are surcharges added on top of the taxed subtotal.
type Fees struct {
	Shipping  money.Number `json:"shipping"`
	Insurance money.Number `json:"insurance"`
}

// Schedule holds the dates printed on the settlement document.
type Schedule struct {
	ContractDate         *time.Time `json:"contract_date,omitempty"`
	ShipmentDate         *time.Time `json:"shipment_date,omitempty"`
	DocumentSentDate     *time.Time `json:"document_sent_date,omitempty"`
	DocumentReceivedDate *time.Time `json:"document_received_date,omitempty"`
	PaymentDate          *time.Time `json:"payment_date,omitempty"`
}

// ListingSnapshot is a copy of the originating listing taken when the trade was opened.
type ListingSnapshot struct {
	ListingID       string        `json:"listing_id,omitempty"`
	Quantity        *money.Number `json:"quantity,omitempty"`
	UnitPrice       *money.Number `json:"unit_price,omitempty"`
	StorageLocation *string       `json:"storage_location,omitempty"`
	CapturedAt      time.Time     `json:"captured_at"`
}

// ShippingInfo is the delivery destination entered by the buyer.
type ShippingInfo struct {
	CompanyName string `json:"company_name"`
	PostalCode  string `json:"postal_code,omitempty"`
	Address     string `json:"address"`
	Tel         string `json:"tel"`
	PersonName  string `json:"person_name"`
	ContactID   string `json:"contact_id,omitempty"`
}

// Contact is a named buyer-side contact registered on a trade.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Trade is the aggregate root of the settlement pipeline.
type Trade struct {
	ID     string `json:"id"`
	NaviID int64  `json:"navi_id,omitempty"`

	Seller Party `json:"seller"`
	Buyer  Party `json:"buyer"`

	Items []LineItem `json:"items"`

	TaxRate         float64 `json:"tax_rate"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	PaymentTerms    string  `json:"payment_terms,omitempty"`
	Terms           string  `json:"terms,omitempty"`
	Remarks         string  `json:"remarks,omitempty"`
	StorageLocation string  `json:"storage_location,omitempty"`
	Fees            Fees    `json:"fees"`

	Schedule Schedule         `json:"schedule"`
	Status   Status           `json:"status"`
	Snapshot *ListingSnapshot `json:"snapshot,omitempty"`
	Shipping ShippingInfo     `json:"shipping"`
	Totals   money.Totals     `json:"totals"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	// Version is bumped by the store on every successful save.
	Version int64 `json:"version"`
}

// Lines returns the numeric view of all line items.
func (t *Trade) Lines() []money.Line {
	lines := make([]money.Line, 0, len(t.Items))
	for _, it := range t.Items {
		lines = append(lines, it.Line())
	}
	return lines
}

// PartyFor returns the party playing role.
func (t *Trade) PartyFor(role Role) Party {
	if role == RoleSeller {
		return t.Seller
	}
	return t.Buyer
}

// RoleOf returns the role userID plays on the trade.
func (t *Trade) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == t.Buyer.UserID:
		return RoleBuyer, true
	case userID == t.Seller.UserID:
		return RoleSeller, true
	default:
		return "", false
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	c.Items = make([]LineItem, len(t.Items))
	for i, it := range t.Items {
		c.Items[i] = it
		c.Items[i].Amount = cloneNumber(it.Amount)
	}
	c.Schedule = Schedule{
		ContractDate:         cloneTime(t.Schedule.ContractDate),
		ShipmentDate:         cloneTime(t.Schedule.ShipmentDate),
		DocumentSentDate:     cloneTime(t.Schedule.DocumentSentDate),
		DocumentReceivedDate: cloneTime(t.Schedule.DocumentReceivedDate),
		PaymentDate:          cloneTime(t.Schedule.PaymentDate),
	}
	if t.Snapshot != nil {
		s := *t.Snapshot
		s.Quantity = cloneNumber(t.Snapshot.Quantity)
		s.UnitPrice = cloneNumber(t.Snapshot.UnitPrice)
		if t.Snapshot.StorageLocation != nil {
			loc := *t.Snapshot.StorageLocation
			s.StorageLocation = &loc
		}
		c.Snapshot = &s
	}
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CanceledAt = cloneTime(t.CanceledAt)
	return &c
}

func cloneNumber(n *money.Number) *money.Number {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
