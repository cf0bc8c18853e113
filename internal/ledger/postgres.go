package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgLockNotAvailable = "55P03"

// Postgres persists accounts and ledger entries in PostgreSQL. Row locks on
// the accounts table serve as the per-account exclusive locks; both balance
// deltas and both leg status transitions commit in a single transaction.
type Postgres struct {
	db       *pgxpool.Pool
	lockWait time.Duration
}

// NewPostgres constructs a Postgres-backed ledger.
func NewPostgres(db *pgxpool.Pool, lockWait time.Duration) *Postgres {
	return &Postgres{db: db, lockWait: lockWait}
}

// Balance returns the stored balance for the account.
func (l *Postgres) Balance(ctx context.Context, accountID string) (int64, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return 0, ErrAccountNotFound
	}
	var balance int64
	err = l.db.QueryRow(ctx, `SELECT balance_cents FROM accounts WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ExecuteTransfer commits the paired legs and balance deltas atomically. Account
// rows are locked in ascending id order inside the transaction; a lock wait past
// the configured timeout surfaces as ErrLockTimeout. If the commit fails after
// the pending legs were staged, the transaction rolls back (no balance delta
// survives) and both legs are re-recorded as failed for diagnostics.
func (l *Postgres) ExecuteTransfer(ctx context.Context, plan TransferPlan) (EntryPair, error) {
	if plan.AmountCents <= 0 {
		return EntryPair{}, fmt.Errorf("amount must be positive")
	}

	fromID, err := uuid.Parse(plan.FromAccountID)
	if err != nil {
		return EntryPair{}, ErrAccountNotFound
	}
	toID, err := uuid.Parse(plan.ToAccountID)
	if err != nil {
		return EntryPair{}, ErrAccountNotFound
	}

	now := time.Now().UTC()
	out := newEntry(plan, TypeTransferOut, plan.OutReference, plan.OutDescription, now)
	in := newEntry(plan, TypeTransferIn, plan.InReference, plan.InDescription, now)

	pair, err := l.commitTransfer(ctx, fromID, toID, plan.AmountCents, out, in)
	if err != nil && errors.Is(err, ErrTransferFailed) {
		l.recordFailedPair(ctx, out, in)
	}
	return pair, err
}

func (l *Postgres) commitTransfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, out, in Entry) (EntryPair, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return EntryPair{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockWait.Milliseconds())); err != nil {
		return EntryPair{}, err
	}

	// Canonical lock order: ascending account id, independent of direction.
	first, second := fromID, toID
	if second.String() < first.String() {
		first, second = second, first
	}

	states := make(map[uuid.UUID]AccountState, 2)
	for _, id := range []uuid.UUID{first, second} {
		st, err := lockAccount(ctx, tx, id)
		if err != nil {
			return EntryPair{}, err
		}
		states[id] = st
	}

	fromState, toState := states[fromID], states[toID]
	if fromState.Status != AccountActive || toState.Status != AccountActive {
		return EntryPair{}, ErrInactiveAccount
	}
	if fromState.BalanceCents < amount {
		return EntryPair{}, ErrInsufficientBalance
	}

	for _, e := range []Entry{out, in} {
		if err := insertEntry(ctx, tx, e); err != nil {
			return EntryPair{}, fmt.Errorf("%w: stage leg: %v", ErrTransferFailed, err)
		}
	}

	completedAt := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance_cents = balance_cents - $1, updated_at = $2 WHERE id = $3`,
		amount, completedAt, fromID); err != nil {
		return EntryPair{}, fmt.Errorf("%w: debit source: %v", ErrTransferFailed, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = $2 WHERE id = $3`,
		amount, completedAt, toID); err != nil {
		return EntryPair{}, fmt.Errorf("%w: credit destination: %v", ErrTransferFailed, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE entries SET status = $1, completed_at = $2 WHERE reference_id = $3`,
		StatusCompleted, completedAt, out.ReferenceID); err != nil {
		return EntryPair{}, fmt.Errorf("%w: complete legs: %v", ErrTransferFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return EntryPair{}, fmt.Errorf("%w: commit: %v", ErrTransferFailed, err)
	}

	out.Status = StatusCompleted
	out.CompletedAt = &completedAt
	in.Status = StatusCompleted
	in.CompletedAt = &completedAt
	return EntryPair{Out: out, In: in}, nil
}

// recordFailedPair writes both legs with status failed in a fresh transaction
// after the aborted commit. Best effort: the ledger state is already correct
// without it, the rows only document the failed attempt.
func (l *Postgres) recordFailedPair(ctx context.Context, out, in Entry) {
	out.Status = StatusFailed
	in.Status = StatusFailed
	batch := &pgx.Batch{}
	for _, e := range []Entry{out, in} {
		batch.Queue(`INSERT INTO entries (id, from_account_id, to_account_id, amount_cents, currency, type, status, description, reference, reference_id, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.FromAccountID, e.ToAccountID, e.AmountCents, e.Currency, e.Type, e.Status, e.Description, e.Reference, e.ReferenceID, e.CreatedAt)
	}
	_ = l.db.SendBatch(ctx, batch).Close()
}

// EntriesForAccount lists the account's legs newest first with the viewing
// account's perspective. Legacy undifferentiated rows are visible from both
// sides and reclassified at read time.
func (l *Postgres) EntriesForAccount(ctx context.Context, accountID string, page Page) ([]EntryView, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	query := `SELECT id, from_account_id, to_account_id, amount_cents, currency, type, status, description, reference, reference_id, created_at, completed_at
        FROM entries
        WHERE (from_account_id = $1 AND type IN ('transfer_out', 'withdrawal', 'payment', 'transfer'))
           OR (to_account_id = $1 AND type IN ('transfer_in', 'deposit', 'transfer'))
        ORDER BY created_at DESC, id DESC`
	args := []any{id}
	if page.Size > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, page.Size, page.Number*page.Size)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]EntryView, 0)
	for rows.Next() {
		var e Entry
		var entryID, fromID, toID uuid.UUID
		if err := rows.Scan(&entryID, &fromID, &toID, &e.AmountCents, &e.Currency, &e.Type, &e.Status,
			&e.Description, &e.Reference, &e.ReferenceID, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		e.ID = entryID.String()
		e.FromAccountID = fromID.String()
		e.ToAccountID = toID.String()
		direction, displayType := perspective(e, accountID)
		views = append(views, EntryView{Entry: e, Direction: direction, DisplayType: displayType})
	}
	return views, rows.Err()
}

func lockAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (AccountState, error) {
	var st AccountState
	err := tx.QueryRow(ctx, `SELECT balance_cents, status, currency FROM accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&st.BalanceCents, &st.Status, &st.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountState{}, ErrAccountNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return AccountState{}, ErrLockTimeout
	}
	if err != nil {
		return AccountState{}, err
	}
	st.ID = id.String()
	return st, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `INSERT INTO entries (id, from_account_id, to_account_id, amount_cents, currency, type, status, description, reference, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.FromAccountID, e.ToAccountID, e.AmountCents, e.Currency, e.Type, e.Status, e.Description, e.Reference, e.ReferenceID, e.CreatedAt)
	return err
}
