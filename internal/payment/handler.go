package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/clearledger/clearledger/internal/account"
	"github.com/clearledger/clearledger/internal/gateway"
	"github.com/clearledger/clearledger/internal/idempotency"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Bounds on client-supplied pagination, so offset arithmetic stays in range.
const (
	maxPageNumber = 1_000_000
	maxPageSize   = 1_000
)

// Handler exposes payment HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// Create makes a payment. The Idempotency-Key header is mandatory; retried
// requests replay the original receipt with 200 instead of 201.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	requesterID, _ := c.Locals("user_id").(string)

	receipt, replayed, err := h.service.Create(c.UserContext(), CreateInput{
		RequesterID:    requesterID,
		AccountID:      req.AccountID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Method:         req.Method,
		Description:    req.Description,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
	})
	if err != nil {
		return mapPaymentError(err)
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(receipt)
}

// Confirm drives an owned payment to a terminal status.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	receipt, err := h.service.Confirm(c.UserContext(), c.Params("paymentId"), requesterID)
	if err != nil {
		return mapPaymentError(err)
	}
	return c.JSON(receipt)
}

// Get returns one owned payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	receipt, err := h.service.Get(c.UserContext(), c.Params("paymentId"), requesterID)
	if err != nil {
		return mapPaymentError(err)
	}
	return c.JSON(receipt)
}

// List returns the requester's payments, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	page, _ := strconv.Atoi(c.Query("page", "0"))
	size, _ := strconv.Atoi(c.Query("size", "0"))
	if page < 0 {
		page = 0
	}
	if page > maxPageNumber {
		page = maxPageNumber
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	receipts, err := h.service.List(c.UserContext(), requesterID, page, size)
	if err != nil {
		return mapPaymentError(err)
	}
	return c.JSON(receipts)
}

func mapPaymentError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, account.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "payment not found")
	case errors.Is(err, ErrMissingKey), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMethod):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, idempotency.ErrReservationRace), errors.Is(err, ErrDuplicateKey):
		return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
	case errors.Is(err, gateway.ErrRejected):
		return fiber.NewError(http.StatusBadRequest, "charge rejected")
	case errors.Is(err, gateway.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "payment gateway unavailable, retry later")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
