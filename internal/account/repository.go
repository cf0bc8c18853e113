package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the account does not exist or is not visible to the
	// requester.
	ErrNotFound = errors.New("account not found")

	// ErrNumberTaken indicates the generated account number collided with an
	// existing one. The service regenerates and retries.
	ErrNumberTaken = errors.New("account number already taken")

	// ErrClosed indicates a status change was attempted on a closed account.
	ErrClosed = errors.New("account is closed")
)

const pgUniqueViolation = "23505"

// Repository persists account metadata. Balance mutation is not part of this
// contract; the ledger owns it.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByNumber(ctx context.Context, number string) (Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account record. A duplicate number maps to ErrNumberTaken.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	id, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(acct.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, number, type, balance_cents, currency, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, ownerID, acct.Number, acct.Type, acct.BalanceCents, acct.Currency, acct.Status, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrNumberTaken
	}
	return err
}

// Get fetches an account by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, number, type, balance_cents, currency, status, created_at, updated_at
        FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

// GetByNumber fetches an account by its unique number.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, number, type, balance_cents, currency, status, created_at, updated_at
        FROM accounts WHERE number = $1`, number)
	return scanAccount(row)
}

// ListByOwner returns all accounts belonging to ownerID, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT id, owner_id, number, type, balance_cents, currency, status, created_at, updated_at
        FROM accounts WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateStatus writes a new account status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	var id, ownerID uuid.UUID
	err := row.Scan(&id, &ownerID, &acct.Number, &acct.Type, &acct.BalanceCents, &acct.Currency,
		&acct.Status, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	acct.ID = id.String()
	acct.OwnerID = ownerID.String()
	return acct, nil
}
