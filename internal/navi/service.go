package navi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

// Store persists trades and their contacts. SaveTrade must reject a trade whose
// Version no longer matches the stored one with ErrConflict; a Version of 0
// inserts. LoadTrade returns (nil, nil) when the trade does not exist.
type Store interface {
	LoadTrade(ctx context.Context, id string) (*model.Trade, error)
	SaveTrade(ctx context.Context, t *model.Trade) (*model.Trade, error)
	LoadContacts(ctx context.Context, tradeID string) ([]model.Contact, error)
	SaveContacts(ctx context.Context, tradeID string, contacts []model.Contact) error
	ListTrades(ctx context.Context, userID string) ([]model.Trade, error)
}

// MessageSource fetches the message thread attached to a navi reference.
type MessageSource interface {
	Messages(ctx context.Context, naviID int64) ([]model.Message, error)
}

// Directory resolves display names for user ids.
type Directory interface {
	CompanyName(ctx context.Context, userID string) (string, error)
}

// Notifier receives an event after each persisted mutation.
type Notifier interface {
	Notify(ctx context.Context, evt model.TradeEvent) error
}

// Actor is the user issuing a command and the role they act as.
type Actor struct {
	UserID string
	Role   model.Role
}

// Service runs lifecycle commands against the store.
type Service struct {
	logger         *zap.Logger
	store          Store
	messages       MessageSource
	directory      Directory
	notifier       Notifier
	now            func() time.Time
	defaultTaxRate float64
}

// Option configures a Service.
type Option func(*Service)

func WithMessages(m MessageSource) Option {
	return func(s *Service) { s.messages = m }
}

func WithDirectory(d Directory) Option {
	return func(s *Service) { s.directory = d }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultTaxRate sets the rate used when OpenCommand carries none.
func WithDefaultTaxRate(rate float64) Option {
	return func(s *Service) { s.defaultTaxRate = rate }
}

// NewService constructs the lifecycle service.
func NewService(logger *zap.Logger, st Store, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger:         logger,
		store:          st,
		now:            time.Now,
		defaultTaxRate: money.DefaultTaxRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Commands ---

type ApproveCommand struct {
	TradeID  string
	Actor    Actor
	Shipping model.ShippingInfo
}

type MarkPaidCommand struct {
	TradeID string
	Actor   Actor
	PaidOn  *time.Time // defaults to now
}

type MarkCompletedCommand struct {
	TradeID string
	Actor   Actor
}

type CancelCommand struct {
	TradeID string
	Actor   Actor
	Reason  string
}

type UpdateShippingCommand struct {
	TradeID  string
	Actor    Actor
	Shipping model.ShippingInfo
}

// UpdatePartyCommand edits the address or contact name of one party. Nil fields are left as-is.
type UpdatePartyCommand struct {
	TradeID     string
	Actor       Actor
	Target      model.Role
	Address     *string
	ContactName *string
}

type AddContactCommand struct {
	TradeID string
	Actor   Actor
	Name    string
}

// OpenCommand registers a trade produced by the offer flow.
type OpenCommand struct {
	Actor           Actor
	NaviID          int64
	Seller          model.Party
	Buyer           model.Party
	Items           []model.LineItem
	TaxRate         *float64
	PaymentMethod   string
	PaymentTerms    string
	Terms           string
	Remarks         string
	StorageLocation string
	Fees            model.Fees
	Schedule        model.Schedule
	Snapshot        *model.ListingSnapshot
}

// View is a trade together with everything derived from it for one viewer.
type View struct {
	Trade        *model.Trade `json:"trade"`
	Role         model.Role   `json:"role"`
	Totals       money.Totals `json:"totals"`
	Presentation Presentation `json:"presentation"`
	Notes        DiffNotes    `json:"notes"`
	Allowed      []Transition `json:"allowed,omitempty"`
}

// --- Transitions ---

// Approve moves a trade from APPROVAL_REQUIRED to PAYMENT_REQUIRED after the
// shipping destination passes the guard.
func (s *Service) Approve(ctx context.Context, cmd ApproveCommand) (*model.Trade, error) {
	return s.transition(ctx, cmd.TradeID, cmd.Actor, TransitionApprove, func(t *model.Trade, now time.Time) error {
		shipping := trimShipping(cmd.Shipping)
		if err := ValidateShipping(shipping); err != nil {
			return err
		}
		contacts, err := s.store.LoadContacts(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("load contacts: %w", err)
		}
		contact, err := ResolveContact(shipping, contacts)
		if err != nil {
			return err
		}
		shipping.ContactID = contact.ID
		shipping.PersonName = contact.Name
		t.Shipping = shipping
		t.ApprovedAt = &now
		return nil
	})
}

// MarkPaid records the buyer's payment.
func (s *Service) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (*model.Trade, error) {
	return s.transition(ctx, cmd.TradeID, cmd.Actor, TransitionMarkPaid, func(t *model.Trade, now time.Time) error {
		paid := now
		if cmd.PaidOn != nil {
			paid = cmd.PaidOn.UTC()
		}
		t.Schedule.PaymentDate = &paid
		return nil
	})
}

// MarkCompleted is the seller confirming receipt of payment.
func (s *Service) MarkCompleted(ctx context.Context, cmd MarkCompletedCommand) (*model.Trade, error) {
	return s.transition(ctx, cmd.TradeID, cmd.Actor, TransitionMarkCompleted, func(t *model.Trade, now time.Time) error {
		t.CompletedAt = &now
		return nil
	})
}

// Cancel exits the pipeline from any open status.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*model.Trade, error) {
	return s.transition(ctx, cmd.TradeID, cmd.Actor, TransitionCancel, func(t *model.Trade, now time.Time) error {
		t.CanceledAt = &now
		t.CancelReason = strings.TrimSpace(cmd.Reason)
		return nil
	})
}

// --- Edits ---

// UpdateShipping saves a draft shipping destination without approving.
func (s *Service) UpdateShipping(ctx context.Context, cmd UpdateShippingCommand) (*model.Trade, error) {
	return s.edit(ctx, cmd.TradeID, cmd.Actor, EditShipping, func(t *model.Trade) error {
		shipping := trimShipping(cmd.Shipping)
		if shipping.ContactID != "" {
			contacts, err := s.store.LoadContacts(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("load contacts: %w", err)
			}
			contact, err := ResolveContact(shipping, contacts)
			if err != nil {
				return err
			}
			shipping.PersonName = contact.Name
		}
		t.Shipping = shipping
		return nil
	})
}

// UpdateParty edits party details. The bound user id and company are never changed.
func (s *Service) UpdateParty(ctx context.Context, cmd UpdatePartyCommand) (*model.Trade, error) {
	return s.edit(ctx, cmd.TradeID, cmd.Actor, EditParty, func(t *model.Trade) error {
		var p *model.Party
		switch cmd.Target {
		case model.RoleBuyer:
			p = &t.Buyer
		case model.RoleSeller:
			p = &t.Seller
		default:
			return &ValidationError{Fields: []string{"target"}, Reason: "unknown"}
		}
		if cmd.Address != nil {
			p.Address = strings.TrimSpace(*cmd.Address)
		}
		if cmd.ContactName != nil {
			p.ContactName = strings.TrimSpace(*cmd.ContactName)
		}
		return nil
	})
}

// AddContact registers a buyer-side contact. Contacts are append-only; adding an
// existing name returns the registered contact.
func (s *Service) AddContact(ctx context.Context, cmd AddContactCommand) (*model.Contact, error) {
	const action = string(EditContacts)
	start := time.Now()
	defer metrics.ObserveDuration(metrics.TransitionDuration, start, action)

	name := strings.TrimSpace(cmd.Name)
	t, err := s.load(ctx, cmd.TradeID)
	if err == nil {
		err = authorize(t, cmd.Actor, EditContacts)
	}
	if err == nil {
		err = checkEdit(t.Status, EditContacts)
	}
	if err == nil && name == "" {
		err = &ValidationError{Fields: []string{"name"}}
	}
	if err != nil {
		return nil, s.reject(action, cmd.TradeID, cmd.Actor, err)
	}

	contacts, err := s.store.LoadContacts(ctx, t.ID)
	if err != nil {
		return nil, s.reject(action, cmd.TradeID, cmd.Actor, fmt.Errorf("load contacts: %w", err))
	}
	for _, c := range contacts {
		if strings.TrimSpace(c.Name) == name {
			metrics.IncTransition(action, "ok")
			return &c, nil
		}
	}

	contact := model.Contact{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.SaveContacts(ctx, t.ID, append(contacts, contact)); err != nil {
		return nil, s.reject(action, cmd.TradeID, cmd.Actor, fmt.Errorf("save contacts: %w", err))
	}

	metrics.IncTransition(action, "ok")
	s.logger.Info("navi.add_contact.applied",
		zap.String("trade_id", t.ID),
		zap.String("contact_id", contact.ID))
	return &contact, nil
}

// Open registers a new trade in APPROVAL_REQUIRED, capturing the listing snapshot.
func (s *Service) Open(ctx context.Context, cmd OpenCommand) (*model.Trade, error) {
	const action = "open"
	start := time.Now()
	defer metrics.ObserveDuration(metrics.TransitionDuration, start, action)

	if err := validateOpen(cmd); err != nil {
		return nil, s.reject(action, "", cmd.Actor, err)
	}

	now := s.now().UTC()
	t := &model.Trade{
		ID:              uuid.NewString(),
		NaviID:          cmd.NaviID,
		Seller:          cmd.Seller,
		Buyer:           cmd.Buyer,
		Items:           cmd.Items,
		TaxRate:         s.defaultTaxRate,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentTerms:    cmd.PaymentTerms,
		Terms:           cmd.Terms,
		Remarks:         cmd.Remarks,
		StorageLocation: strings.TrimSpace(cmd.StorageLocation),
		Fees:            cmd.Fees,
		Schedule:        cmd.Schedule,
		Status:          model.StatusApprovalRequired,
		CreatedAt:       now,
	}
	if cmd.TaxRate != nil {
		t.TaxRate = *cmd.TaxRate
	}
	if cmd.Snapshot != nil {
		snap := *cmd.Snapshot
		if snap.CapturedAt.IsZero() {
			snap.CapturedAt = now
		}
		t.Snapshot = &snap
	}
	// Detach from caller-owned slices and pointers.
	t = t.Clone()

	s.fillCompanyName(ctx, &t.Seller)
	s.fillCompanyName(ctx, &t.Buyer)

	saved, err := s.save(ctx, t, now)
	if err != nil {
		return nil, s.reject(action, t.ID, cmd.Actor, err)
	}

	// Contacts reference the saved trade.
	if name := strings.TrimSpace(saved.Buyer.ContactName); name != "" {
		seed := []model.Contact{{ID: uuid.NewString(), Name: name, CreatedAt: now}}
		if err := s.store.SaveContacts(ctx, saved.ID, seed); err != nil {
			metrics.IncError("navi", "seed_contact_failed")
			s.logger.Warn("navi.open.seed_contact_failed",
				zap.String("trade_id", saved.ID),
				zap.Error(err))
		}
	}

	metrics.IncTransition(action, "ok")
	s.logger.Info("navi.open.applied",
		zap.String("trade_id", saved.ID),
		zap.Int64("navi_id", saved.NaviID),
		zap.String("seller", saved.Seller.UserID),
		zap.String("buyer", saved.Buyer.UserID))
	s.notify(ctx, saved, action, "", cmd.Actor)
	return saved, nil
}

// --- Queries ---

// Get returns the trade as seen by userID.
func (s *Service) Get(ctx context.Context, tradeID, userID string) (*View, error) {
	t, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	role, ok := t.RoleOf(userID)
	if !ok {
		return nil, unauthorized("user %q is not a party to trade %s", userID, t.ID)
	}
	v := buildView(t, role)
	return &v, nil
}

// List returns every trade userID is a party to, with the presentation for their role.
func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	if userID == "" {
		return nil, unauthorized("missing actor")
	}
	trades, err := s.store.ListTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	views := make([]View, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		role, ok := t.RoleOf(userID)
		if !ok {
			continue
		}
		views = append(views, buildView(t, role))
	}
	return views, nil
}

// Statement returns the settlement document data for a party of the trade.
func (s *Service) Statement(ctx context.Context, tradeID, userID string) (*Statement, error) {
	t, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if _, ok := t.RoleOf(userID); !ok {
		return nil, unauthorized("user %q is not a party to trade %s", userID, t.ID)
	}
	st := BuildStatement(t, s.now().UTC())
	return &st, nil
}

// Contacts lists the buyer-side contacts registered on the trade.
func (s *Service) Contacts(ctx context.Context, tradeID, userID string) ([]model.Contact, error) {
	t, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if _, ok := t.RoleOf(userID); !ok {
		return nil, unauthorized("user %q is not a party to trade %s", userID, t.ID)
	}
	return s.store.LoadContacts(ctx, t.ID)
}

// Messages returns the message thread for the trade's navi reference.
func (s *Service) Messages(ctx context.Context, tradeID, userID string) ([]model.Message, error) {
	t, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if _, ok := t.RoleOf(userID); !ok {
		return nil, unauthorized("user %q is not a party to trade %s", userID, t.ID)
	}
	if s.messages == nil || t.NaviID == 0 {
		return []model.Message{}, nil
	}
	msgs, err := s.messages.Messages(ctx, t.NaviID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for navi %d: %w", t.NaviID, err)
	}
	return msgs, nil
}

// --- internals ---

func (s *Service) transition(ctx context.Context, tradeID string, actor Actor, via Transition, apply func(*model.Trade, time.Time) error) (*model.Trade, error) {
	action := string(via)
	start := time.Now()
	defer metrics.ObserveDuration(metrics.TransitionDuration, start, action)

	t, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}
	if err := authorize(t, actor, via); err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}
	from := t.Status
	next, err := Next(from, via)
	if err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}

	now := s.now().UTC()
	if err := apply(t, now); err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}
	t.Status = next

	saved, err := s.save(ctx, t, now)
	if err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}

	metrics.IncTransition(action, "ok")
	s.logger.Info("navi."+action+".applied",
		zap.String("trade_id", saved.ID),
		zap.String("from", string(from)),
		zap.String("to", string(saved.Status)),
		zap.String("actor", actor.UserID),
		zap.Int64("version", saved.Version))
	s.notify(ctx, saved, action, from, actor)
	return saved, nil
}

func (s *Service) edit(ctx context.Context, tradeID string, actor Actor, via Transition, apply func(*model.Trade) error) (*model.Trade, error) {
	action := string(via)
	start := time.Now()
	defer metrics.ObserveDuration(metrics.TransitionDuration, start, action)

	t, err := s.load(ctx, tradeID)
	if err == nil {
		err = authorize(t, actor, via)
	}
	if err == nil {
		err = checkEdit(t.Status, via)
	}
	if err == nil {
		err = apply(t)
	}
	if err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}

	saved, err := s.save(ctx, t, s.now().UTC())
	if err != nil {
		return nil, s.reject(action, tradeID, actor, err)
	}

	metrics.IncTransition(action, "ok")
	s.logger.Info("navi."+action+".applied",
		zap.String("trade_id", saved.ID),
		zap.String("actor", actor.UserID),
		zap.Int64("version", saved.Version))
	s.notify(ctx, saved, action, saved.Status, actor)
	return saved, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.Trade, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("trade id is required: %w", ErrNotFound)
	}
	t, err := s.store.LoadTrade(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load trade %s: %w", id, err)
	}
	if t == nil {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// save recomputes stored totals and persists the trade.
func (s *Service) save(ctx context.Context, t *model.Trade, now time.Time) (*model.Trade, error) {
	t.Totals = ComputeTotals(t)
	t.UpdatedAt = now
	saved, err := s.store.SaveTrade(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("save trade %s: %w", t.ID, err)
	}
	return saved, nil
}

func (s *Service) reject(action, tradeID string, actor Actor, err error) error {
	metrics.IncTransition(action, resultOf(err))
	s.logger.Warn("navi."+action+".rejected",
		zap.String("trade_id", tradeID),
		zap.String("actor", actor.UserID),
		zap.String("role", string(actor.Role)),
		zap.Error(err))
	return err
}

func (s *Service) notify(ctx context.Context, t *model.Trade, action string, from model.Status, actor Actor) {
	if s.notifier == nil {
		return
	}
	evt := model.TradeEvent{
		TradeID:   t.ID,
		NaviID:    t.NaviID,
		Action:    action,
		From:      from,
		To:        t.Status,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		SellerID:  t.Seller.UserID,
		BuyerID:   t.Buyer.UserID,
		Version:   t.Version,
		Timestamp: t.UpdatedAt,
	}
	// The mutation is already committed; a lost event must not undo it.
	if err := s.notifier.Notify(ctx, evt); err != nil {
		metrics.IncError("notifier", "publish_failed")
		s.logger.Warn("navi.notify_failed",
			zap.String("trade_id", t.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *Service) fillCompanyName(ctx context.Context, p *model.Party) {
	if s.directory == nil || strings.TrimSpace(p.CompanyName) != "" {
		return
	}
	name, err := s.directory.CompanyName(ctx, p.UserID)
	if err != nil {
		s.logger.Warn("navi.directory_lookup_failed",
			zap.String("user_id", p.UserID),
			zap.Error(err))
		return
	}
	p.CompanyName = name
}

func authorize(t *model.Trade, actor Actor, via Transition) error {
	if actor.UserID == "" {
		return unauthorized("missing actor")
	}
	if actor.Role != model.RoleBuyer && actor.Role != model.RoleSeller {
		return unauthorized("unknown role %q", actor.Role)
	}
	if t.PartyFor(actor.Role).UserID != actor.UserID {
		return unauthorized("user %q is not the %s of trade %s", actor.UserID, actor.Role, t.ID)
	}
	if !RoleMayPerform(via, actor.Role) {
		return unauthorized("%s may not %s", actor.Role, via)
	}
	return nil
}

func validateOpen(cmd OpenCommand) error {
	var missing []string
	if blank(cmd.Seller.UserID) {
		missing = append(missing, "seller.userId")
	}
	if blank(cmd.Buyer.UserID) {
		missing = append(missing, "buyer.userId")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if cmd.Seller.UserID == cmd.Buyer.UserID {
		return &ValidationError{Fields: []string{"seller.userId", "buyer.userId"}, Reason: "identical"}
	}
	if cmd.Actor.Role != model.RoleBuyer || cmd.Actor.UserID != cmd.Buyer.UserID {
		return unauthorized("only the buyer may open a trade")
	}
	if cmd.TaxRate != nil && *cmd.TaxRate < 0 {
		return &ValidationError{Fields: []string{"taxRate"}, Reason: "negative"}
	}
	return ValidateItems(cmd.Items)
}

func buildView(t *model.Trade, role model.Role) View {
	return View{
		Trade:        t,
		Role:         role,
		Totals:       ComputeTotals(t),
		Presentation: DerivePresentation(t, role),
		Notes:        BuildDiffNotes(TermsOf(t), t.Snapshot),
		Allowed:      allowedFor(t.Status, role),
	}
}

func allowedFor(status model.Status, role model.Role) []Transition {
	var out []Transition
	for _, via := range Allowed(status) {
		if RoleMayPerform(via, role) {
			out = append(out, via)
		}
	}
	return out
}

func trimShipping(s model.ShippingInfo) model.ShippingInfo {
	return model.ShippingInfo{
		CompanyName: strings.TrimSpace(s.CompanyName),
		PostalCode:  strings.TrimSpace(s.PostalCode),
		Address:     strings.TrimSpace(s.Address),
		Tel:         strings.TrimSpace(s.Tel),
		PersonName:  strings.TrimSpace(s.PersonName),
		ContactID:   strings.TrimSpace(s.ContactID),
	}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidationFailed):
		return "validation"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
