package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"earngram-backend/internal/model"
)

const depositColumns = `id, account_id, amount, currency, method, tx_ref, sender, status, created_at, processed_at`

func scanDeposit(row pgx.Row) (*model.DepositRequest, error) {
	var d model.DepositRequest
	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&d.Amount,
		&d.Currency,
		&d.Method,
		&d.TxRef,
		&d.Sender,
		&d.Status,
		&d.CreatedAt,
		&d.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DepositRepository handles deposit submission persistence.
type DepositRepository struct {
	pool *pgxpool.Pool
}

// NewDepositRepository creates a new DepositRepository instance.
func NewDepositRepository(pool *pgxpool.Pool) *DepositRepository {
	return &DepositRepository{pool: pool}
}

// Create records a new PENDING deposit submission. No funds move here.
func (r *DepositRepository) Create(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, txRef string, sender *string) (*model.DepositRequest, error) {
	query := fmt.Sprintf(`
		INSERT INTO deposits (account_id, amount, currency, method, tx_ref, sender, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', NOW())
		RETURNING %s
	`, depositColumns)

	d, err := scanDeposit(r.pool.QueryRow(ctx, query, accountID, amount, currency, method, txRef, sender))
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit request: %w", err)
	}
	return d, nil
}

// GetByID retrieves a deposit request.
func (r *DepositRepository) GetByID(ctx context.Context, requestID int64) (*model.DepositRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM deposits WHERE id = $1`, depositColumns)

	d, err := scanDeposit(r.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get deposit request: %w", err)
	}
	return d, nil
}

// MarkProcessed transitions a PENDING deposit to a terminal status.
// Exactly one concurrent caller wins; the rest see ErrAlreadyProcessed.
func (r *DepositRepository) MarkProcessed(ctx context.Context, requestID int64, status string) (*model.DepositRequest, error) {
	query := fmt.Sprintf(`
		UPDATE deposits
		SET status = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING %s
	`, depositColumns)

	d, err := scanDeposit(r.pool.QueryRow(ctx, query, requestID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, requestID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to process deposit request: %w", err)
	}
	return d, nil
}

// ListByStatus retrieves deposits in a given status, oldest first. Used by
// the administrator queue and the background verification sweep.
func (r *DepositRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.DepositRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deposits
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, depositColumns)

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.DepositRequest
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit request: %w", err)
		}
		requests = append(requests, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit requests: %w", err)
	}

	return requests, nil
}
