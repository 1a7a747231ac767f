package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Checker-Finance/navi/internal/rate"
)

// HealthChecker is implemented by the stores.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AppConfig tunes the fiber application.
type AppConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	BodyLimit    int
}

// NewApp builds a fiber app whose error handler replies in the API's JSON shape.
func NewApp(cfg AppConfig, logger *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               "navi-server",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler(logger),
	})
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("navi.api.unhandled", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(code).JSON(ErrorResponse{Error: "internal error"})
		}
		return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
	}
}

// Deps are the collaborators RegisterRoutes wires.
type Deps struct {
	NATS    *nats.Conn // optional; checked by /health when set
	Store   HealthChecker
	Trades  *TradeHandler
	Auth    *ActorAuth
	Limiter *rate.Manager

	// DefaultTaxRate applies to /totals requests without a tax_rate.
	DefaultTaxRate float64
}

func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{"store": "ok"}
		status := "ok"
		code := fiber.StatusOK

		if d.NATS != nil {
			checks["nats"] = "ok"
			if !d.NATS.IsConnected() {
				checks["nats"] = "disconnected"
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			} else if err := d.NATS.FlushTimeout(1 * time.Second); err != nil {
				checks["nats"] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.Store.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Post("/totals", Totals(d.DefaultTaxRate))

	trades := v1.Group("/trades", d.Auth.Protect(), RateLimit(d.Limiter))
	trades.Post("/", d.Trades.Open)
	trades.Get("/", d.Trades.List)
	trades.Get("/:id", d.Trades.Get)
	trades.Get("/:id/statement", d.Trades.Statement)
	trades.Get("/:id/messages", d.Trades.Messages)
	trades.Get("/:id/contacts", d.Trades.Contacts)
	trades.Post("/:id/contacts", d.Trades.AddContact)
	trades.Post("/:id/approve", d.Trades.Approve)
	trades.Post("/:id/pay", d.Trades.MarkPaid)
	trades.Post("/:id/complete", d.Trades.MarkCompleted)
	trades.Post("/:id/cancel", d.Trades.Cancel)
	trades.Put("/:id/shipping", d.Trades.UpdateShipping)
	trades.Put("/:id/parties/:role", d.Trades.UpdateParty)
}
