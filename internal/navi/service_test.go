package navi_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/internal/store"
	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

var (
	buyer  = navi.Actor{UserID: "buyer-1", Role: model.RoleBuyer}
	seller = navi.Actor{UserID: "seller-1", Role: model.RoleSeller}
	clock  = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.TradeEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, evt model.TradeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

type mockDirectory struct {
	CompanyNameFunc func(ctx context.Context, userID string) (string, error)
}

func (m *mockDirectory) CompanyName(ctx context.Context, userID string) (string, error) {
	return m.CompanyNameFunc(ctx, userID)
}

type mockMessages struct {
	MessagesFunc func(ctx context.Context, naviID int64) ([]model.Message, error)
}

func (m *mockMessages) Messages(ctx context.Context, naviID int64) ([]model.Message, error) {
	return m.MessagesFunc(ctx, naviID)
}

type fixture struct {
	svc      *navi.Service
	store    *store.Memory
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...navi.Option) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory(), notifier: &recordingNotifier{}}
	base := []navi.Option{
		navi.WithNotifier(f.notifier),
		navi.WithClock(func() time.Time { return clock }),
	}
	f.svc = navi.NewService(zap.NewNop(), f.store, append(base, opts...)...)
	return f
}

func openCommand() navi.OpenCommand {
	return navi.OpenCommand{
		Actor:  buyer,
		NaviID: 7001,
		Seller: model.Party{UserID: "seller-1", CompanyName: "Hall Supply"},
		Buyer:  model.Party{UserID: "buyer-1", CompanyName: "Dealer KK", ContactName: "Sato"},
		Items: []model.LineItem{
			{Maker: "Sankyo", Name: "CR Fever", Category: "pachinko", Quantity: 10, UnitPrice: 128000},
		},
	}
}

func (f *fixture) open(t *testing.T) *model.Trade {
	t.Helper()
	tr, err := f.svc.Open(context.Background(), openCommand())
	require.NoError(t, err)
	return tr
}

func (f *fixture) stored(t *testing.T, id string) *model.Trade {
	t.Helper()
	tr, err := f.store.LoadTrade(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tr)
	return tr
}

func (f *fixture) approve(t *testing.T, id string) *model.Trade {
	t.Helper()
	tr, err := f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: id, Actor: buyer, Shipping: completeShipping()})
	require.NoError(t, err)
	return tr
}

func TestOpen_DefaultsAndTotals(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, model.StatusApprovalRequired, tr.Status)
	assert.Equal(t, money.DefaultTaxRate, tr.TaxRate)
	assert.Equal(t, int64(1), tr.Version)
	assert.True(t, tr.Totals.Subtotal.Equal(decimal.NewFromInt(1280000)))
	assert.True(t, tr.Totals.Tax.Equal(decimal.NewFromInt(128000)))
	assert.True(t, tr.Totals.Total.Equal(decimal.NewFromInt(1408000)))

	contacts, err := f.store.LoadContacts(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Sato", contacts[0].Name)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "open", f.notifier.events[0].Action)
}

func TestOpen_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := openCommand()
	cmd.Items = nil
	_, err := f.svc.Open(ctx, cmd)
	assert.ErrorIs(t, err, navi.ErrValidationFailed)

	cmd = openCommand()
	cmd.Actor = seller
	_, err = f.svc.Open(ctx, cmd)
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	cmd = openCommand()
	cmd.Seller.UserID = cmd.Buyer.UserID
	_, err = f.svc.Open(ctx, cmd)
	assert.ErrorIs(t, err, navi.ErrValidationFailed)

	rate := -0.1
	cmd = openCommand()
	cmd.TaxRate = &rate
	_, err = f.svc.Open(ctx, cmd)
	assert.ErrorIs(t, err, navi.ErrValidationFailed)
}

func TestOpen_FillsCompanyNameFromDirectory(t *testing.T) {
	dir := &mockDirectory{CompanyNameFunc: func(_ context.Context, userID string) (string, error) {
		if userID == "seller-1" {
			return "Directory Seller", nil
		}
		return "", errors.New("unknown user")
	}}
	f := newFixture(t, navi.WithDirectory(dir))

	cmd := openCommand()
	cmd.Seller.CompanyName = ""
	cmd.Buyer.CompanyName = ""
	tr, err := f.svc.Open(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "Directory Seller", tr.Seller.CompanyName)
	assert.Empty(t, tr.Buyer.CompanyName)
}

// faultyStore fails the configured writes and records the trade ids it was given.
type faultyStore struct {
	*store.Memory
	saveTradeErr    error
	saveContactsErr error
	tradeIDs        []string
}

func (s *faultyStore) SaveTrade(ctx context.Context, t *model.Trade) (*model.Trade, error) {
	s.tradeIDs = append(s.tradeIDs, t.ID)
	if s.saveTradeErr != nil {
		return nil, s.saveTradeErr
	}
	return s.Memory.SaveTrade(ctx, t)
}

func (s *faultyStore) SaveContacts(ctx context.Context, tradeID string, contacts []model.Contact) error {
	if s.saveContactsErr != nil {
		return s.saveContactsErr
	}
	return s.Memory.SaveContacts(ctx, tradeID, contacts)
}

func TestOpen_FailedSaveLeavesNoContacts(t *testing.T) {
	st := &faultyStore{Memory: store.NewMemory(), saveTradeErr: errors.New("db down")}
	notifier := &recordingNotifier{}
	svc := navi.NewService(zap.NewNop(), st, navi.WithNotifier(notifier))
	ctx := context.Background()

	_, err := svc.Open(ctx, openCommand())
	require.Error(t, err)
	require.Len(t, st.tradeIDs, 1)

	contacts, err := st.Memory.LoadContacts(ctx, st.tradeIDs[0])
	require.NoError(t, err)
	assert.Empty(t, contacts)
	tr, err := st.Memory.LoadTrade(ctx, st.tradeIDs[0])
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Empty(t, notifier.events)
}

func TestOpen_ContactSeedFailureKeepsTrade(t *testing.T) {
	st := &faultyStore{Memory: store.NewMemory(), saveContactsErr: errors.New("db down")}
	svc := navi.NewService(zap.NewNop(), st)
	ctx := context.Background()

	tr, err := svc.Open(ctx, openCommand())
	require.NoError(t, err)

	stored, err := st.Memory.LoadTrade(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	contacts, err := st.Memory.LoadContacts(ctx, tr.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestApprove_CompleteShipping(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	approved := f.approve(t, tr.ID)
	assert.Equal(t, model.StatusPaymentRequired, approved.Status)
	assert.Equal(t, "1-1 Umeda, Osaka", approved.Shipping.Address)
	assert.NotEmpty(t, approved.Shipping.ContactID)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, clock, *approved.ApprovedAt)

	persisted := f.stored(t, tr.ID)
	assert.Equal(t, model.StatusPaymentRequired, persisted.Status)
	assert.Equal(t, approved.Shipping, persisted.Shipping)

	view, err := f.svc.Get(context.Background(), tr.ID, buyer.UserID)
	require.NoError(t, err)
	assert.True(t, view.Notes.Empty())
}

func TestApprove_MissingPersonName(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	s := completeShipping()
	s.PersonName = ""
	_, err := f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: s})
	require.ErrorIs(t, err, navi.ErrValidationFailed)

	var ve *navi.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "personName")

	persisted := f.stored(t, tr.ID)
	assert.Equal(t, model.StatusApprovalRequired, persisted.Status)
	assert.Equal(t, tr.Version, persisted.Version)
}

func TestApprove_UnregisteredContact(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	s := completeShipping()
	s.PersonName = "Suzuki"
	_, err := f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: s})
	assert.ErrorIs(t, err, navi.ErrValidationFailed)
	assert.Equal(t, model.StatusApprovalRequired, f.stored(t, tr.ID).Status)
}

func TestApprove_Twice(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)
	f.approve(t, tr.ID)

	_, err := f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: completeShipping()})
	assert.ErrorIs(t, err, navi.ErrIllegalTransition)
}

func TestTransitions_Authorization(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)
	ctx := context.Background()

	// seller acting as buyer
	_, err := f.svc.Approve(ctx, navi.ApproveCommand{
		TradeID:  tr.ID,
		Actor:    navi.Actor{UserID: seller.UserID, Role: model.RoleBuyer},
		Shipping: completeShipping(),
	})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	// right user, wrong role for the transition
	_, err = f.svc.Approve(ctx, navi.ApproveCommand{TradeID: tr.ID, Actor: seller, Shipping: completeShipping()})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	_, err = f.svc.Cancel(ctx, navi.CancelCommand{TradeID: tr.ID, Actor: navi.Actor{UserID: "stranger", Role: model.RoleBuyer}})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	_, err = f.svc.MarkPaid(ctx, navi.MarkPaidCommand{TradeID: tr.ID, Actor: navi.Actor{}})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	assert.Equal(t, tr.Version, f.stored(t, tr.ID).Version)
}

func TestTransitions_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkCompleted(context.Background(), navi.MarkCompletedCommand{TradeID: "missing", Actor: seller})
	assert.ErrorIs(t, err, navi.ErrNotFound)

	_, err = f.svc.Get(context.Background(), "", buyer.UserID)
	assert.ErrorIs(t, err, navi.ErrNotFound)
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t)
	f.approve(t, tr.ID)

	paidOn := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	paid, err := f.svc.MarkPaid(ctx, navi.MarkPaidCommand{TradeID: tr.ID, Actor: buyer, PaidOn: &paidOn})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmRequired, paid.Status)
	require.NotNil(t, paid.Schedule.PaymentDate)
	assert.Equal(t, paidOn, *paid.Schedule.PaymentDate)

	_, err = f.svc.MarkPaid(ctx, navi.MarkPaidCommand{TradeID: tr.ID, Actor: buyer})
	assert.ErrorIs(t, err, navi.ErrIllegalTransition)

	_, err = f.svc.MarkCompleted(ctx, navi.MarkCompletedCommand{TradeID: tr.ID, Actor: buyer})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	done, err := f.svc.MarkCompleted(ctx, navi.MarkCompletedCommand{TradeID: tr.ID, Actor: seller})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = f.svc.Cancel(ctx, navi.CancelCommand{TradeID: tr.ID, Actor: seller})
	assert.ErrorIs(t, err, navi.ErrIllegalTransition)

	var actions []string
	for _, e := range f.notifier.events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"open", "approve", "mark_paid", "mark_completed"}, actions)
	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, model.StatusConfirmRequired, last.From)
	assert.Equal(t, model.StatusCompleted, last.To)
	assert.Equal(t, done.Version, last.Version)
}

func TestCancel_FromEveryOpenState(t *testing.T) {
	ctx := context.Background()
	advance := []func(f *fixture, id string){
		func(*fixture, string) {},
		func(f *fixture, id string) { f.approve(t, id) },
		func(f *fixture, id string) {
			f.approve(t, id)
			_, err := f.svc.MarkPaid(ctx, navi.MarkPaidCommand{TradeID: id, Actor: buyer})
			require.NoError(t, err)
		},
	}
	for i, step := range advance {
		f := newFixture(t)
		tr := f.open(t)
		step(f, tr.ID)

		canceled, err := f.svc.Cancel(ctx, navi.CancelCommand{TradeID: tr.ID, Actor: seller, Reason: " machine sold elsewhere "})
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, model.StatusCanceled, canceled.Status)
		assert.Equal(t, "machine sold elsewhere", canceled.CancelReason)
		require.NotNil(t, canceled.CanceledAt)

		_, err = f.svc.Cancel(ctx, navi.CancelCommand{TradeID: tr.ID, Actor: buyer})
		assert.ErrorIs(t, err, navi.ErrIllegalTransition)
	}
}

func TestTransitions_ConcurrentApproveOneWins(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: completeShipping()})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, navi.ErrConflict) || errors.Is(err, navi.ErrIllegalTransition), err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(2), f.stored(t, tr.ID).Version)
}

func TestNotifyFailureDoesNotUndoMutation(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)
	f.notifier.err = errors.New("broker down")

	approved, err := f.svc.Approve(context.Background(), navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: completeShipping()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaymentRequired, approved.Status)
}

func TestUpdateShipping_OnlyBeforeApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t)

	draft := model.ShippingInfo{Address: " 2-2 Namba "}
	updated, err := f.svc.UpdateShipping(ctx, navi.UpdateShippingCommand{TradeID: tr.ID, Actor: buyer, Shipping: draft})
	require.NoError(t, err)
	assert.Equal(t, "2-2 Namba", updated.Shipping.Address)
	assert.Equal(t, model.StatusApprovalRequired, updated.Status)

	_, err = f.svc.UpdateShipping(ctx, navi.UpdateShippingCommand{TradeID: tr.ID, Actor: seller, Shipping: draft})
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	f.approve(t, tr.ID)
	_, err = f.svc.UpdateShipping(ctx, navi.UpdateShippingCommand{TradeID: tr.ID, Actor: buyer, Shipping: draft})
	assert.ErrorIs(t, err, navi.ErrIllegalTransition)
}

func TestUpdateParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t)

	addr := "3-3 Sakae, Nagoya"
	updated, err := f.svc.UpdateParty(ctx, navi.UpdatePartyCommand{TradeID: tr.ID, Actor: buyer, Target: model.RoleSeller, Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, addr, updated.Seller.Address)
	assert.Equal(t, "seller-1", updated.Seller.UserID)
	assert.Equal(t, "Sato", updated.Buyer.ContactName)

	_, err = f.svc.UpdateParty(ctx, navi.UpdatePartyCommand{TradeID: tr.ID, Actor: buyer, Target: model.Role("broker")})
	assert.ErrorIs(t, err, navi.ErrValidationFailed)
}

func TestAddContact_AppendOnlyAndDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t)

	c, err := f.svc.AddContact(ctx, navi.AddContactCommand{TradeID: tr.ID, Actor: buyer, Name: "Tanaka"})
	require.NoError(t, err)
	assert.Equal(t, "Tanaka", c.Name)

	again, err := f.svc.AddContact(ctx, navi.AddContactCommand{TradeID: tr.ID, Actor: buyer, Name: " Tanaka "})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	_, err = f.svc.AddContact(ctx, navi.AddContactCommand{TradeID: tr.ID, Actor: buyer, Name: ""})
	assert.ErrorIs(t, err, navi.ErrValidationFailed)

	contacts, err := f.svc.Contacts(ctx, tr.ID, seller.UserID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)

	s := completeShipping()
	s.PersonName = "Tanaka"
	approved, err := f.svc.Approve(ctx, navi.ApproveCommand{TradeID: tr.ID, Actor: buyer, Shipping: s})
	require.NoError(t, err)
	assert.Equal(t, c.ID, approved.Shipping.ContactID)
}

func TestGetAndList_RoleAwareViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t)
	f.approve(t, tr.ID)

	bv, err := f.svc.Get(ctx, tr.ID, buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, bv.Role)
	require.NotNil(t, bv.Presentation.PrimaryAction)
	assert.Equal(t, "mark paid", bv.Presentation.PrimaryAction.Label)
	assert.Equal(t, []navi.Transition{navi.TransitionMarkPaid, navi.TransitionCancel}, bv.Allowed)

	sv, err := f.svc.Get(ctx, tr.ID, seller.UserID)
	require.NoError(t, err)
	assert.Nil(t, sv.Presentation.PrimaryAction)
	assert.Equal(t, []navi.Transition{navi.TransitionCancel}, sv.Allowed)

	_, err = f.svc.Get(ctx, tr.ID, "stranger")
	assert.ErrorIs(t, err, navi.ErrUnauthorized)

	list, err := f.svc.List(ctx, seller.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, navi.SectionPayment, list[0].Presentation.Section)

	none, err := f.svc.List(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGet_SnapshotDrift(t *testing.T) {
	f := newFixture(t)
	cmd := openCommand()
	cmd.Items[0].Quantity = 8
	cmd.Snapshot = &model.ListingSnapshot{ListingID: "L-1", Quantity: money.Ptr(10), UnitPrice: money.Ptr(128000)}
	tr, err := f.svc.Open(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, clock, tr.Snapshot.CapturedAt)

	v, err := f.svc.Get(context.Background(), tr.ID, seller.UserID)
	require.NoError(t, err)
	assert.NotEmpty(t, v.Notes.Quantity)
	assert.Empty(t, v.Notes.UnitPrice)
	assert.Empty(t, v.Notes.Storage)
}

func TestStatement(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t)

	st, err := f.svc.Statement(context.Background(), tr.ID, buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, st.TradeID)
	require.Len(t, st.Lines, 1)
	assert.True(t, st.Lines[0].LineAmount.Equal(decimal.NewFromInt(1280000)))
	assert.True(t, st.Totals.Total.Equal(decimal.NewFromInt(1408000)))
	assert.Equal(t, clock, st.IssuedAt)

	_, err = f.svc.Statement(context.Background(), tr.ID, "stranger")
	assert.ErrorIs(t, err, navi.ErrUnauthorized)
}

func TestMessages(t *testing.T) {
	msgs := &mockMessages{MessagesFunc: func(_ context.Context, naviID int64) ([]model.Message, error) {
		assert.Equal(t, int64(7001), naviID)
		return []model.Message{{Sender: "seller-1", Body: "shipping Friday", Timestamp: clock}}, nil
	}}
	f := newFixture(t, navi.WithMessages(msgs))
	tr := f.open(t)

	got, err := f.svc.Messages(context.Background(), tr.ID, buyer.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shipping Friday", got[0].Body)

	plain := newFixture(t)
	tr2 := plain.open(t)
	empty, err := plain.svc.Messages(context.Background(), tr2.ID, buyer.UserID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
