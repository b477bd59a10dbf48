package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"earngram-backend/internal/model"
)

const withdrawalColumns = `id, account_id, amount, currency, method, address, status, created_at, processed_at`

func scanWithdrawal(row pgx.Row) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	err := row.Scan(
		&w.ID,
		&w.AccountID,
		&w.Amount,
		&w.Currency,
		&w.Method,
		&w.Address,
		&w.Status,
		&w.CreatedAt,
		&w.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// WithdrawalRepository handles withdrawal request persistence.
type WithdrawalRepository struct {
	pool *pgxpool.Pool
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(pool *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{pool: pool}
}

// Create records a new PENDING withdrawal request. The caller must have
// already reserved the funds on the account.
func (r *WithdrawalRepository) Create(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, address string) (*model.WithdrawalRequest, error) {
	query := fmt.Sprintf(`
		INSERT INTO withdrawals (account_id, amount, currency, method, address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', NOW())
		RETURNING %s
	`, withdrawalColumns)

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, accountID, amount, currency, method, address))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return w, nil
}

// GetByID retrieves a withdrawal request.
func (r *WithdrawalRepository) GetByID(ctx context.Context, requestID int64) (*model.WithdrawalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM withdrawals WHERE id = $1`, withdrawalColumns)

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return w, nil
}

// MarkProcessed transitions a PENDING request to a terminal status.
// The conditional update makes concurrent processing attempts race-safe:
// exactly one wins, the rest observe ErrAlreadyProcessed.
func (r *WithdrawalRepository) MarkProcessed(ctx context.Context, requestID int64, status string) (*model.WithdrawalRequest, error) {
	query := fmt.Sprintf(`
		UPDATE withdrawals
		SET status = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING %s
	`, withdrawalColumns)

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, requestID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from already-terminal
			if _, getErr := r.GetByID(ctx, requestID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to process withdrawal request: %w", err)
	}
	return w, nil
}

// ListByStatus retrieves requests in a given status, oldest first, for the
// administrator review queue.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.WithdrawalRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, withdrawalColumns)

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		requests = append(requests, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal requests: %w", err)
	}

	return requests, nil
}
