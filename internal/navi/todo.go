package navi

import (
	"github.com/Checker-Finance/navi/pkg/model"
)

// Section groups trades in list views.
type Section string

const (
	SectionApproval     Section = "approval"
	SectionPayment      Section = "payment"
	SectionConfirmation Section = "confirmation"
	SectionCompleted    Section = "completed"
	SectionCanceled     Section = "canceled"
)

// Action is the next step available to the viewer.
type Action struct {
	Transition Transition `json:"transition"`
	Label      string     `json:"label"`
}

// Presentation is what a given role sees for a trade.
type Presentation struct {
	TodoKind      model.Status `json:"todo_kind"`
	Label         string       `json:"label"`
	Section       Section      `json:"section"`
	Description   string       `json:"description"`
	PrimaryAction *Action      `json:"primary_action,omitempty"`
	IsOpen        bool         `json:"is_open"`
	CanCancel     bool         `json:"can_cancel"`
}

type view struct {
	label       string
	description string
	action      *Action
}

// Status alone decides the section; no other flag takes part.
var sections = map[model.Status]Section{
	model.StatusApprovalRequired: SectionApproval,
	model.StatusPaymentRequired:  SectionPayment,
	model.StatusConfirmRequired:  SectionConfirmation,
	model.StatusCompleted:        SectionCompleted,
	model.StatusCanceled:         SectionCanceled,
}

var views = map[model.Status]map[model.Role]view{
	model.StatusApprovalRequired: {
		model.RoleBuyer: {
			label:       "awaiting your approval",
			description: "Review the terms, enter the shipping destination and approve the trade.",
			action:      &Action{Transition: TransitionApprove, Label: "approve"},
		},
		model.RoleSeller: {
			label:       "awaiting buyer approval",
			description: "The buyer has not approved the trade terms yet.",
		},
	},
	model.StatusPaymentRequired: {
		model.RoleBuyer: {
			label:       "awaiting your payment",
			description: "Pay the invoiced total and mark the trade as paid.",
			action:      &Action{Transition: TransitionMarkPaid, Label: "mark paid"},
		},
		model.RoleSeller: {
			label:       "awaiting buyer payment",
			description: "The buyer approved the trade and payment is pending.",
		},
	},
	model.StatusConfirmRequired: {
		model.RoleBuyer: {
			label:       "awaiting seller confirmation",
			description: "Payment was reported; the seller still has to confirm receipt.",
		},
		model.RoleSeller: {
			label:       "awaiting your confirmation",
			description: "Confirm the buyer's payment arrived and complete the trade.",
			action:      &Action{Transition: TransitionMarkCompleted, Label: "mark completed"},
		},
	},
	model.StatusCompleted: {
		model.RoleBuyer:  {label: "completed", description: "The trade is settled."},
		model.RoleSeller: {label: "completed", description: "The trade is settled."},
	},
	model.StatusCanceled: {
		model.RoleBuyer:  {label: "canceled", description: "The trade was canceled."},
		model.RoleSeller: {label: "canceled", description: "The trade was canceled."},
	},
}

// DerivePresentation maps (status, role) to what the viewer sees. It performs
// no I/O and returns equal results for equal inputs.
func DerivePresentation(t *model.Trade, role model.Role) Presentation {
	status := t.Status
	p := Presentation{
		TodoKind: status,
		Section:  sections[status],
		IsOpen:   status.Valid() && !status.Terminal(),
	}

	v, ok := views[status][role]
	if !ok {
		p.Label = string(status)
		return p
	}
	p.Label = v.label
	p.CanCancel = p.IsOpen
	p.Description = v.description
	if v.action != nil {
		a := *v.action
		p.PrimaryAction = &a
	}
	return p
}
