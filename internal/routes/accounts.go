package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clearledger/clearledger/internal/account"
)

// RegisterAccountRoutes wires account management endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:accountId", h.Get)
	r.Get("/accounts/:accountId/balance", h.Balance)
	r.Post("/accounts/:accountId/suspend", h.Suspend)
	r.Post("/accounts/:accountId/activate", h.Activate)
	r.Post("/accounts/:accountId/close", h.Close)
}
