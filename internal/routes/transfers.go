package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clearledger/clearledger/internal/transfer"
)

// RegisterTransferRoutes wires fund movement and history endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Create)
	r.Get("/transactions", h.ListForOwner)
	r.Get("/accounts/:accountId/transactions", h.ListForAccount)
}
