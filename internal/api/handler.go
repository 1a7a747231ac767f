package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/metrics"
	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

// TradeService is the lifecycle surface the handlers drive.
type TradeService interface {
	Open(ctx context.Context, cmd navi.OpenCommand) (*model.Trade, error)
	Approve(ctx context.Context, cmd navi.ApproveCommand) (*model.Trade, error)
	MarkPaid(ctx context.Context, cmd navi.MarkPaidCommand) (*model.Trade, error)
	MarkCompleted(ctx context.Context, cmd navi.MarkCompletedCommand) (*model.Trade, error)
	Cancel(ctx context.Context, cmd navi.CancelCommand) (*model.Trade, error)
	UpdateShipping(ctx context.Context, cmd navi.UpdateShippingCommand) (*model.Trade, error)
	UpdateParty(ctx context.Context, cmd navi.UpdatePartyCommand) (*model.Trade, error)
	AddContact(ctx context.Context, cmd navi.AddContactCommand) (*model.Contact, error)

	Get(ctx context.Context, tradeID, userID string) (*navi.View, error)
	List(ctx context.Context, userID string) ([]navi.View, error)
	Statement(ctx context.Context, tradeID, userID string) (*navi.Statement, error)
	Contacts(ctx context.Context, tradeID, userID string) ([]model.Contact, error)
	Messages(ctx context.Context, tradeID, userID string) ([]model.Message, error)
}

// TradeHandler serves the trade lifecycle API.
type TradeHandler struct {
	logger  *zap.Logger
	service TradeService
}

func NewTradeHandler(logger *zap.Logger, service TradeService) *TradeHandler {
	return &TradeHandler{logger: logger, service: service}
}

// Open handles POST /trades.
func (h *TradeHandler) Open(c *fiber.Ctx) error {
	var req OpenTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	t, err := h.service.Open(c.UserContext(), navi.OpenCommand{
		Actor:           actorFrom(c),
		NaviID:          req.NaviID,
		Seller:          req.Seller,
		Buyer:           req.Buyer,
		Items:           req.Items,
		TaxRate:         req.TaxRate,
		PaymentMethod:   req.PaymentMethod,
		PaymentTerms:    req.PaymentTerms,
		Terms:           req.Terms,
		Remarks:         req.Remarks,
		StorageLocation: req.StorageLocation,
		Fees:            req.Fees,
		Schedule:        req.Schedule,
		Snapshot:        req.Snapshot,
	})
	if err != nil {
		return h.fail(c, "open", "", err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// List handles GET /trades.
func (h *TradeHandler) List(c *fiber.Ctx) error {
	views, err := h.service.List(c.UserContext(), actorFrom(c).UserID)
	if err != nil {
		return h.fail(c, "list", "", err)
	}
	if section := c.Query("section"); section != "" {
		filtered := views[:0]
		for _, v := range views {
			if string(v.Presentation.Section) == section {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	return c.JSON(fiber.Map{"trades": views})
}

// Get handles GET /trades/:id.
func (h *TradeHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	v, err := h.service.Get(c.UserContext(), id, actorFrom(c).UserID)
	if err != nil {
		return h.fail(c, "get", id, err)
	}
	return c.JSON(v)
}

// Statement handles GET /trades/:id/statement.
func (h *TradeHandler) Statement(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := h.service.Statement(c.UserContext(), id, actorFrom(c).UserID)
	if err != nil {
		return h.fail(c, "statement", id, err)
	}
	return c.JSON(st)
}

// Messages handles GET /trades/:id/messages.
func (h *TradeHandler) Messages(c *fiber.Ctx) error {
	id := c.Params("id")
	msgs, err := h.service.Messages(c.UserContext(), id, actorFrom(c).UserID)
	if err != nil {
		return h.fail(c, "messages", id, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// Contacts handles GET /trades/:id/contacts.
func (h *TradeHandler) Contacts(c *fiber.Ctx) error {
	id := c.Params("id")
	contacts, err := h.service.Contacts(c.UserContext(), id, actorFrom(c).UserID)
	if err != nil {
		return h.fail(c, "contacts", id, err)
	}
	return c.JSON(fiber.Map{"contacts": contacts})
}

// AddContact handles POST /trades/:id/contacts.
func (h *TradeHandler) AddContact(c *fiber.Ctx) error {
	id := c.Params("id")
	var req AddContactRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	contact, err := h.service.AddContact(c.UserContext(), navi.AddContactCommand{
		TradeID: id,
		Actor:   actorFrom(c),
		Name:    req.Name,
	})
	if err != nil {
		return h.fail(c, "add_contact", id, err)
	}
	return c.Status(fiber.StatusCreated).JSON(contact)
}

// Approve handles POST /trades/:id/approve.
func (h *TradeHandler) Approve(c *fiber.Ctx) error {
	id := c.Params("id")
	var req ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	t, err := h.service.Approve(c.UserContext(), navi.ApproveCommand{
		TradeID:  id,
		Actor:    actorFrom(c),
		Shipping: req.Shipping,
	})
	if err != nil {
		return h.fail(c, "approve", id, err)
	}
	return c.JSON(t)
}

// MarkPaid handles POST /trades/:id/pay. The body is optional.
func (h *TradeHandler) MarkPaid(c *fiber.Ctx) error {
	id := c.Params("id")
	var req MarkPaidRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	t, err := h.service.MarkPaid(c.UserContext(), navi.MarkPaidCommand{
		TradeID: id,
		Actor:   actorFrom(c),
		PaidOn:  req.PaidOn,
	})
	if err != nil {
		return h.fail(c, "mark_paid", id, err)
	}
	return c.JSON(t)
}

// MarkCompleted handles POST /trades/:id/complete.
func (h *TradeHandler) MarkCompleted(c *fiber.Ctx) error {
	id := c.Params("id")
	t, err := h.service.MarkCompleted(c.UserContext(), navi.MarkCompletedCommand{
		TradeID: id,
		Actor:   actorFrom(c),
	})
	if err != nil {
		return h.fail(c, "mark_completed", id, err)
	}
	return c.JSON(t)
}

// Cancel handles POST /trades/:id/cancel.
func (h *TradeHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	t, err := h.service.Cancel(c.UserContext(), navi.CancelCommand{
		TradeID: id,
		Actor:   actorFrom(c),
		Reason:  req.Reason,
	})
	if err != nil {
		return h.fail(c, "cancel", id, err)
	}
	return c.JSON(t)
}

// UpdateShipping handles PUT /trades/:id/shipping.
func (h *TradeHandler) UpdateShipping(c *fiber.Ctx) error {
	id := c.Params("id")
	var req ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	t, err := h.service.UpdateShipping(c.UserContext(), navi.UpdateShippingCommand{
		TradeID:  id,
		Actor:    actorFrom(c),
		Shipping: req.Shipping,
	})
	if err != nil {
		return h.fail(c, "update_shipping", id, err)
	}
	return c.JSON(t)
}

// UpdateParty handles PUT /trades/:id/parties/:role.
func (h *TradeHandler) UpdateParty(c *fiber.Ctx) error {
	id := c.Params("id")
	target, ok := model.RoleFromString(c.Params("role"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "role must be 'buyer' or 'seller'"})
	}
	var req UpdatePartyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	t, err := h.service.UpdateParty(c.UserContext(), navi.UpdatePartyCommand{
		TradeID:     id,
		Actor:       actorFrom(c),
		Target:      target,
		Address:     req.Address,
		ContactName: req.ContactName,
	})
	if err != nil {
		return h.fail(c, "update_party", id, err)
	}
	return c.JSON(t)
}

// Totals handles POST /totals. It never fails on malformed numbers.
func Totals(defaultTaxRate float64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req TotalsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		taxRate := defaultTaxRate
		if req.TaxRate != nil {
			taxRate = req.TaxRate.Float()
		}
		lines := make([]money.Line, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, it.Line())
		}
		t := money.Compute(lines, taxRate, req.Fees.Shipping, req.Fees.Insurance)
		return c.JSON(TotalsResponse{
			Totals: t,
			Display: TotalsDisplay{
				Subtotal: money.FormatYen(t.Subtotal),
				Tax:      money.FormatYen(t.Tax),
				Fees:     money.FormatYen(t.Fees),
				Total:    money.FormatYen(t.Total),
			},
		})
	}
}

// fail maps domain errors to HTTP statuses.
func (h *TradeHandler) fail(c *fiber.Ctx, op, tradeID string, err error) error {
	code, body := errorBody(err)
	if code >= fiber.StatusInternalServerError {
		metrics.IncError("api", op)
		h.logger.Error("navi.api."+op+".failed",
			zap.String("trade_id", tradeID),
			zap.Error(err))
	} else {
		h.logger.Debug("navi.api."+op+".rejected",
			zap.String("trade_id", tradeID),
			zap.Int("status", code),
			zap.Error(err))
	}
	return c.Status(code).JSON(body)
}

func errorBody(err error) (int, ErrorResponse) {
	var verr *navi.ValidationError
	var terr *navi.TransitionError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Fields: verr.Fields}
	case errors.As(err, &terr):
		return fiber.StatusConflict, ErrorResponse{Error: err.Error(), Status: string(terr.From)}
	case errors.Is(err, navi.ErrValidationFailed):
		return fiber.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()}
	case errors.Is(err, navi.ErrNotFound):
		return fiber.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, navi.ErrUnauthorized):
		return fiber.StatusForbidden, ErrorResponse{Error: err.Error()}
	case errors.Is(err, navi.ErrIllegalTransition), errors.Is(err, navi.ErrConflict):
		return fiber.StatusConflict, ErrorResponse{Error: err.Error()}
	default:
		return fiber.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body: " + strings.TrimSpace(err.Error())})
}
