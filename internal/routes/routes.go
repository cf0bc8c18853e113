package routes

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clearledger/clearledger/internal/account"
	"github.com/clearledger/clearledger/internal/config"
	"github.com/clearledger/clearledger/internal/events"
	"github.com/clearledger/clearledger/internal/gateway"
	"github.com/clearledger/clearledger/internal/idempotency"
	"github.com/clearledger/clearledger/internal/ledger"
	"github.com/clearledger/clearledger/internal/middleware"
	"github.com/clearledger/clearledger/internal/payment"
	"github.com/clearledger/clearledger/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. When DB or Cache
// are nil in dev, in-memory backends take their place.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Metrics())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Backends
	var (
		accountRepo account.Repository
		ledgerSvc   ledger.Ledger
		paymentRepo payment.Repository
	)
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
		ledgerSvc = ledger.NewPostgres(d.DB, d.Cfg.LockWait)
		paymentRepo = payment.NewPostgresRepository(d.DB)
	} else {
		memRepo := account.NewMemoryRepository()
		accountRepo = memRepo
		ledgerSvc = ledger.NewMemory(memRepo, d.Cfg.LockWait)
		paymentRepo = payment.NewMemoryRepository()
	}

	var guard idempotency.Guard
	if d.Cache != nil {
		guard = idempotency.NewRedisGuard(d.Cache, d.Cfg.IdempotencyTTL)
	} else {
		memGuard := idempotency.NewMemoryGuard(d.Cfg.IdempotencyTTL)
		memGuard.StartSweeper(context.Background(), d.Cfg.SweepInterval, d.Logger)
		guard = memGuard
	}

	publisher := events.NewLogPublisher(d.Logger)
	charges := gateway.Static{}

	numbers := account.IBANNumbers(rand.NewSource(time.Now().UnixNano()))
	accountSvc := account.NewService(accountRepo, ledgerSvc, numbers, d.Logger)
	transferSvc := transfer.NewService(accountRepo, ledgerSvc, publisher, d.Logger, d.Cfg.TransferCeilingCents)
	paymentSvc := payment.NewService(paymentRepo, accountRepo, guard, charges, publisher, d.Logger)

	accountHandler := account.NewHandler(accountSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	paymentHandler := payment.NewHandler(paymentSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// All business routes require the gateway-provided user id.
	protected := api.Group("", middleware.RequesterID())
	RegisterAccountRoutes(protected, accountHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterPaymentRoutes(protected, paymentHandler)

	return nil
}
