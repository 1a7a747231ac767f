package navi

import (
	"github.com/Checker-Finance/navi/pkg/model"
)

// Transition names a lifecycle command.
type Transition string

const (
	TransitionApprove       Transition = "approve"
	TransitionMarkPaid      Transition = "mark_paid"
	TransitionMarkCompleted Transition = "mark_completed"
	TransitionCancel        Transition = "cancel"

	// Edits that never change status.
	EditShipping Transition = "update_shipping"
	EditParty    Transition = "update_party"
	EditContacts Transition = "add_contact"
)

type edge struct {
	from model.Status
	via  Transition
}

var transitions = map[edge]model.Status{
	{model.StatusApprovalRequired, TransitionApprove}:      model.StatusPaymentRequired,
	{model.StatusPaymentRequired, TransitionMarkPaid}:      model.StatusConfirmRequired,
	{model.StatusConfirmRequired, TransitionMarkCompleted}: model.StatusCompleted,
	{model.StatusApprovalRequired, TransitionCancel}:       model.StatusCanceled,
	{model.StatusPaymentRequired, TransitionCancel}:        model.StatusCanceled,
	{model.StatusConfirmRequired, TransitionCancel}:        model.StatusCanceled,
}

var actors = map[Transition][]model.Role{
	TransitionApprove:       {model.RoleBuyer},
	TransitionMarkPaid:      {model.RoleBuyer},
	TransitionMarkCompleted: {model.RoleSeller},
	TransitionCancel:        {model.RoleBuyer, model.RoleSeller},
	EditShipping:            {model.RoleBuyer},
	EditParty:               {model.RoleBuyer},
	EditContacts:            {model.RoleBuyer},
}

// order fixes the iteration order of Allowed.
var order = []Transition{TransitionApprove, TransitionMarkPaid, TransitionMarkCompleted, TransitionCancel}

// Next returns the status reached by applying via to from.
func Next(from model.Status, via Transition) (model.Status, error) {
	to, ok := transitions[edge{from, via}]
	if !ok {
		return from, &TransitionError{From: from, Transition: via}
	}
	return to, nil
}

// Allowed lists the transitions defined from status.
func Allowed(from model.Status) []Transition {
	var out []Transition
	for _, t := range order {
		if _, ok := transitions[edge{from, t}]; ok {
			out = append(out, t)
		}
	}
	return out
}

// RoleMayPerform reports whether role is allowed to issue via.
func RoleMayPerform(via Transition, role model.Role) bool {
	for _, r := range actors[via] {
		if r == role {
			return true
		}
	}
	return false
}

// checkEdit reports whether an in-place edit is allowed from status.
func checkEdit(from model.Status, via Transition) error {
	switch via {
	case EditShipping, EditParty:
		if from == model.StatusApprovalRequired {
			return nil
		}
	case EditContacts:
		if !from.Terminal() && from.Valid() {
			return nil
		}
	}
	return &TransitionError{From: from, Transition: via}
}
