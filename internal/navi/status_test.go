package navi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
)

func TestNext_ForwardPath(t *testing.T) {
	steps := []struct {
		from model.Status
		via  navi.Transition
		to   model.Status
	}{
		{model.StatusApprovalRequired, navi.TransitionApprove, model.StatusPaymentRequired},
		{model.StatusPaymentRequired, navi.TransitionMarkPaid, model.StatusConfirmRequired},
		{model.StatusConfirmRequired, navi.TransitionMarkCompleted, model.StatusCompleted},
	}
	for _, s := range steps {
		got, err := navi.Next(s.from, s.via)
		require.NoError(t, err, "%s from %s", s.via, s.from)
		assert.Equal(t, s.to, got)
	}
}

func TestNext_NoBackwardTransitions(t *testing.T) {
	for _, from := range []model.Status{model.StatusConfirmRequired, model.StatusCompleted, model.StatusCanceled} {
		_, err := navi.Next(from, navi.TransitionMarkPaid)
		assert.ErrorIs(t, err, navi.ErrIllegalTransition, "markPaid from %s", from)

		var te *navi.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, from, te.From)
	}
}

func TestNext_CancelFromOpenStatesOnly(t *testing.T) {
	for _, from := range []model.Status{model.StatusApprovalRequired, model.StatusPaymentRequired, model.StatusConfirmRequired} {
		got, err := navi.Next(from, navi.TransitionCancel)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCanceled, got)
	}
	for _, from := range []model.Status{model.StatusCompleted, model.StatusCanceled} {
		_, err := navi.Next(from, navi.TransitionCancel)
		assert.ErrorIs(t, err, navi.ErrIllegalTransition)
	}
}

func TestNext_TerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []model.Status{model.StatusCompleted, model.StatusCanceled} {
		assert.Empty(t, navi.Allowed(s), s)
	}
}

func TestNext_UnknownStatus(t *testing.T) {
	_, err := navi.Next(model.Status("SHIPPED"), navi.TransitionApprove)
	assert.ErrorIs(t, err, navi.ErrIllegalTransition)
}

func TestAllowed_Order(t *testing.T) {
	assert.Equal(t,
		[]navi.Transition{navi.TransitionApprove, navi.TransitionCancel},
		navi.Allowed(model.StatusApprovalRequired))
	assert.Equal(t,
		[]navi.Transition{navi.TransitionMarkCompleted, navi.TransitionCancel},
		navi.Allowed(model.StatusConfirmRequired))
}

func TestRoleMayPerform(t *testing.T) {
	assert.True(t, navi.RoleMayPerform(navi.TransitionApprove, model.RoleBuyer))
	assert.False(t, navi.RoleMayPerform(navi.TransitionApprove, model.RoleSeller))
	assert.True(t, navi.RoleMayPerform(navi.TransitionMarkCompleted, model.RoleSeller))
	assert.False(t, navi.RoleMayPerform(navi.TransitionMarkCompleted, model.RoleBuyer))
	assert.True(t, navi.RoleMayPerform(navi.TransitionCancel, model.RoleBuyer))
	assert.True(t, navi.RoleMayPerform(navi.TransitionCancel, model.RoleSeller))
	assert.False(t, navi.RoleMayPerform(navi.TransitionCancel, model.Role("broker")))
}
