package account

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

type accountResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Number       string    `json:"number"`
	Type         string    `json:"type"`
	BalanceCents int64     `json:"balance_cents"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Create opens an account for the requester.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	requesterID, _ := c.Locals("user_id").(string)

	acct, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:  requesterID,
		Type:     req.Type,
		Currency: req.Currency,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(acct))
}

// Get returns one owned account.
func (h *Handler) Get(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	acct, err := h.service.Get(c.UserContext(), c.Params("accountId"), requesterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(acct))
}

// List returns all accounts of the requester.
func (h *Handler) List(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	accounts, err := h.service.List(c.UserContext(), requesterID)
	if err != nil {
		return mapError(err)
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toResponse(acct))
	}
	return c.JSON(out)
}

// Balance returns the ledger balance of an owned account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	requesterID, _ := c.Locals("user_id").(string)
	accountID := c.Params("accountId")
	balance, err := h.service.Balance(c.UserContext(), accountID, requesterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"account_id":    accountID,
		"balance_cents": balance,
		"timestamp":     time.Now().UTC(),
	})
}

// Suspend suspends an owned account.
func (h *Handler) Suspend(c *fiber.Ctx) error {
	return h.changeStatus(c, h.service.Suspend)
}

// Activate reactivates an owned account.
func (h *Handler) Activate(c *fiber.Ctx) error {
	return h.changeStatus(c, h.service.Activate)
}

// Close closes an owned account permanently.
func (h *Handler) Close(c *fiber.Ctx) error {
	return h.changeStatus(c, h.service.Close)
}

func (h *Handler) changeStatus(c *fiber.Ctx, op func(ctx context.Context, id, requesterID string) (Account, error)) error {
	requesterID, _ := c.Locals("user_id").(string)
	acct, err := op(c.UserContext(), c.Params("accountId"), requesterID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(acct))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrClosed):
		return fiber.NewError(http.StatusConflict, "account is closed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toResponse(acct Account) accountResponse {
	return accountResponse{
		ID:           acct.ID,
		OwnerID:      acct.OwnerID,
		Number:       acct.Number,
		Type:         acct.Type,
		BalanceCents: acct.BalanceCents,
		Currency:     acct.Currency,
		Status:       acct.Status,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}
}
