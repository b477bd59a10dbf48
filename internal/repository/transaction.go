package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"earngram-backend/internal/model"
)

// TransactionRepository handles the append-only audit log. Entries are
// never updated or deleted once written.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create appends a new audit entry for a balance mutation.
func (r *TransactionRepository) Create(ctx context.Context, accountID int64, amount int64, currency model.Currency, txType string, description *string) (*model.TransactionEntry, error) {
	const query = `
		INSERT INTO transactions (account_id, amount, currency, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, account_id, amount, currency, type, description, created_at
	`

	var tx model.TransactionEntry
	err := r.pool.QueryRow(ctx, query, accountID, amount, currency, txType, description).Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Type,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction entry: %w", err)
	}

	return &tx, nil
}

// GetByAccountID retrieves recent entries for an account, newest first.
func (r *TransactionRepository) GetByAccountID(ctx context.Context, accountID int64, limit int) ([]*model.TransactionEntry, error) {
	const query = `
		SELECT id, account_id, amount, currency, type, description, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.TransactionEntry
	for rows.Next() {
		var tx model.TransactionEntry
		err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Amount,
			&tx.Currency,
			&tx.Type,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction entry: %w", err)
		}
		entries = append(entries, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction entries: %w", err)
	}

	return entries, nil
}

// SumByAccountAndCurrency returns the signed sum of all entries for an
// account in one currency. Reconciliation invariant: this always equals
// the account's current balance for that currency.
func (r *TransactionRepository) SumByAccountAndCurrency(ctx context.Context, accountID int64, currency model.Currency) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND currency = $2
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, accountID, currency).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transaction entries: %w", err)
	}
	return sum, nil
}
