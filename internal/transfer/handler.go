package transfer

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clearledger/clearledger/internal/account"
	"github.com/clearledger/clearledger/internal/ledger"
)

// Handler exposes transfer and transaction-history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromAccountID   string `json:"from_account_id"`
	ToAccountNumber string `json:"to_account_number"`
	AmountCents     int64  `json:"amount_cents"`
	Description     string `json:"description"`
}

type entryResponse struct {
	ID            string     `json:"id"`
	FromAccountID string     `json:"from_account_id"`
	ToAccountID   string     `json:"to_account_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Description   string     `json:"description"`
	Reference     string     `json:"reference"`
	ReferenceID   string     `json:"reference_id"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Direction     string     `json:"direction,omitempty"`
}

// Create processes a transfer between two accounts.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	requesterID, _ := c.Locals("user_id").(string)

	res, err := h.service.Transfer(c.UserContext(), Input{
		RequesterID:     requesterID,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		AmountCents:     req.AmountCents,
		Description:     req.Description,
	})
	if err != nil {
		return mapTransferError(err)
	}

	resp := toEntryResponse(res.Entry)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction":        resp,
		"from_balance_cents": res.FromBalanceCents,
	})
}

// ListForAccount returns the ledger legs of one owned account.
func (h *Handler) ListForAccount(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	page := parsePage(c)

	views, err := h.service.ListForAccount(c.UserContext(), c.Params("accountId"), requesterID, page)
	if err != nil {
		return mapTransferError(err)
	}
	return c.JSON(toViewResponses(views))
}

// ListForOwner merges legs across all the requester's accounts.
func (h *Handler) ListForOwner(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	page := parsePage(c)

	views, err := h.service.ListForOwner(c.UserContext(), requesterID, page)
	if err != nil {
		return mapTransferError(err)
	}
	return c.JSON(toViewResponses(views))
}

// Bounds on client-supplied pagination, so offset arithmetic stays in range.
const (
	maxPageNumber = 1_000_000
	maxPageSize   = 1_000
)

func parsePage(c *fiber.Ctx) ledger.Page {
	number, _ := strconv.Atoi(c.Query("page", "0"))
	size, _ := strconv.Atoi(c.Query("size", "0"))
	if number < 0 {
		number = 0
	}
	if number > maxPageNumber {
		number = maxPageNumber
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return ledger.Page{Number: number, Size: size}
}

func mapTransferError(err error) error {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, "account does not belong to requester")
	case errors.Is(err, ErrSameAccount), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountOverCeiling), errors.Is(err, ledger.ErrInactiveAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, "insufficient balance")
	case errors.Is(err, ledger.ErrLockTimeout):
		return fiber.NewError(http.StatusServiceUnavailable, "account busy, retry later")
	case errors.Is(err, ledger.ErrTransferFailed):
		return fiber.NewError(http.StatusInternalServerError, "transfer failed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		FromAccountID: e.FromAccountID,
		ToAccountID:   e.ToAccountID,
		AmountCents:   e.AmountCents,
		Currency:      e.Currency,
		Type:          e.Type,
		Status:        e.Status,
		Description:   e.Description,
		Reference:     e.Reference,
		ReferenceID:   e.ReferenceID,
		CreatedAt:     e.CreatedAt,
		CompletedAt:   e.CompletedAt,
	}
}

func toViewResponses(views []ledger.EntryView) []entryResponse {
	out := make([]entryResponse, 0, len(views))
	for _, v := range views {
		resp := toEntryResponse(v.Entry)
		resp.Type = v.DisplayType
		resp.Direction = v.Direction
		out = append(out, resp)
	}
	return out
}
