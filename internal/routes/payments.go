package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clearledger/clearledger/internal/payment"
)

// RegisterPaymentRoutes wires merchant payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payment.Handler) {
	r.Post("/payments", h.Create)
	r.Get("/payments", h.List)
	r.Get("/payments/:paymentId", h.Get)
	r.Post("/payments/:paymentId/confirm", h.Confirm)
}
