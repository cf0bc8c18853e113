package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the payment does not exist or is not visible to the
	// requester.
	ErrNotFound = errors.New("payment not found")

	// ErrDuplicateKey indicates a payment row already carries this idempotency
	// key. The unique constraint is the storage-level backstop behind the guard.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

const pgUniqueViolation = "23505"

// Repository persists payments.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	Update(ctx context.Context, p Payment) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error)
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a payment row.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		return err
	}
	accountID, err := uuid.Parse(p.AccountID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payments (id, user_id, account_id, charge_id, amount_cents, currency, status, method, description, failure_reason, idempotency_key, created_at, updated_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, userID, accountID, p.ChargeID, p.AmountCents, p.Currency, p.Status, p.Method,
		p.Description, p.FailureReason, p.IdempotencyKey, p.CreatedAt.UTC(), p.UpdatedAt.UTC(), p.CompletedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateKey
	}
	return err
}

// Get fetches a payment by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	paymentID, err := uuid.Parse(id)
	if err != nil {
		return Payment{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, user_id, account_id, charge_id, amount_cents, currency, status, method, description, failure_reason, idempotency_key, created_at, updated_at, completed_at
        FROM payments WHERE id = $1`, paymentID)
	return scanPayment(row)
}

// Update rewrites the mutable payment fields.
func (r *PostgresRepository) Update(ctx context.Context, p Payment) error {
	paymentID, err := uuid.Parse(p.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE payments SET charge_id = $1, status = $2, failure_reason = $3, updated_at = $4, completed_at = $5 WHERE id = $6`,
		p.ChargeID, p.Status, p.FailureReason, p.UpdatedAt.UTC(), p.CompletedAt, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's payments, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error) {
	user, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT id, user_id, account_id, charge_id, amount_cents, currency, status, method, description, failure_reason, idempotency_key, created_at, updated_at, completed_at
        FROM payments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{user}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var id, userID, accountID uuid.UUID
	err := row.Scan(&id, &userID, &accountID, &p.ChargeID, &p.AmountCents, &p.Currency, &p.Status,
		&p.Method, &p.Description, &p.FailureReason, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	p.ID = id.String()
	p.UserID = userID.String()
	p.AccountID = accountID.String()
	return p, nil
}
