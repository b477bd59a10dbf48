// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"earngram-backend/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrRequestNotFound  = errors.New("request not found")
	ErrAlreadyProcessed = errors.New("request already processed")
)

// accountColumns is the canonical column list scanned into model.Account.
const accountColumns = `id, username, balance_fiat, balance_crypto, total_earnings,
	invited_by, referral_count, is_banned, strike_count, is_flagged, flag_reason,
	device_id, last_ip, last_deposit_at, last_bonus_claim_at, is_verified,
	created_at, updated_at`

// balanceColumn maps a currency to its balance column. Currency is a closed
// enum validated at the service boundary, so this is safe to interpolate.
func balanceColumn(currency model.Currency) string {
	if currency == model.CurrencyUSDT {
		return "balance_crypto"
	}
	return "balance_fiat"
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.BalanceFiat,
		&a.BalanceCrypto,
		&a.TotalEarnings,
		&a.InvitedBy,
		&a.ReferralCount,
		&a.IsBanned,
		&a.StrikeCount,
		&a.IsFlagged,
		&a.FlagReason,
		&a.DeviceID,
		&a.LastIP,
		&a.LastDepositAt,
		&a.LastBonusClaim,
		&a.IsVerified,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AccountRepository handles account data persistence. Every balance
// mutation is an atomic in-place increment so concurrent updates to the
// same account never lose writes.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create creates a new account with zero balances.
func (r *AccountRepository) Create(ctx context.Context, accountID int64, username string, invitedBy *int64) (*model.Account, error) {
	query := fmt.Sprintf(`
		INSERT INTO accounts (id, username, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING %s
	`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID, username, invitedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account by its ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, accountID int64) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetOrCreate retrieves an account by ID, creating one if it doesn't exist.
// Re-creation attempts return the existing record unchanged.
func (r *AccountRepository) GetOrCreate(ctx context.Context, accountID int64, username string, invitedBy *int64) (*model.Account, bool, error) {
	account, err := r.GetByID(ctx, accountID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	account, err = r.Create(ctx, accountID, username, invitedBy)
	if err != nil {
		// Handle race condition: another request might have created the account
		account, err = r.GetByID(ctx, accountID)
		if err != nil {
			return nil, false, err
		}
		return account, false, nil
	}

	return account, true, nil
}

// IncrementReferralCount bumps the inviter's referral child counter.
func (r *AccountRepository) IncrementReferralCount(ctx context.Context, accountID int64) error {
	const query = `
		UPDATE accounts
		SET referral_count = referral_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to increment referral count: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Credit adds amount (possibly negative) to the account's balance for the
// given currency and returns the updated account.
func (r *AccountRepository) Credit(ctx context.Context, accountID int64, currency model.Currency, amount int64) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %s = %s + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, balanceColumn(currency), balanceColumn(currency), accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	return account, nil
}

// CreditEarnings adds amount to the fiat balance and lifetime earnings in a
// single statement. Used exclusively by the reward distributor; lifetime
// earnings never move through any other path.
func (r *AccountRepository) CreditEarnings(ctx context.Context, accountID int64, amount int64) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET balance_fiat = balance_fiat + $2,
		    total_earnings = total_earnings + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit earnings: %w", err)
	}
	return account, nil
}

// Reserve conditionally deducts amount from the balance for currency.
// Returns false without mutating anything if the balance is insufficient.
func (r *AccountRepository) Reserve(ctx context.Context, accountID int64, currency model.Currency, amount int64) (bool, error) {
	col := balanceColumn(currency)
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %s = %s - $2, updated_at = NOW()
		WHERE id = $1 AND %s >= $2
	`, col, col, col)

	result, err := r.pool.Exec(ctx, query, accountID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to reserve balance: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// TouchDepositAttempt stamps the deposit-attempt timestamp if the cooldown
// window has elapsed. Returns false if a prior attempt is still cooling down.
func (r *AccountRepository) TouchDepositAttempt(ctx context.Context, accountID int64, cooldown time.Duration) (bool, error) {
	const query = `
		UPDATE accounts
		SET last_deposit_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND (last_deposit_at IS NULL OR last_deposit_at <= NOW() - $2::interval)
	`

	result, err := r.pool.Exec(ctx, query, accountID, cooldown)
	if err != nil {
		return false, fmt.Errorf("failed to stamp deposit attempt: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SetBonusClaim stamps the daily-bonus claim timestamp.
func (r *AccountRepository) SetBonusClaim(ctx context.Context, accountID int64, claimedAt time.Time) error {
	const query = `
		UPDATE accounts
		SET last_bonus_claim_at = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID, claimedAt)
	if err != nil {
		return fmt.Errorf("failed to set bonus claim time: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateUsername updates an account's display name.
func (r *AccountRepository) UpdateUsername(ctx context.Context, accountID int64, username string) error {
	const query = `
		UPDATE accounts
		SET username = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AddStrike increments the strike count, flipping the ban flag once the
// limit is reached. The ban flag never flips back here.
func (r *AccountRepository) AddStrike(ctx context.Context, accountID int64, strikeLimit int) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET strike_count = strike_count + 1,
		    is_banned = is_banned OR (strike_count + 1 >= $2),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID, strikeLimit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to add strike: %w", err)
	}
	return account, nil
}

// Unban clears the ban flag and strike count.
func (r *AccountRepository) Unban(ctx context.Context, accountID int64) error {
	const query = `
		UPDATE accounts
		SET is_banned = FALSE, strike_count = 0, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to unban account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// MarkVerified sets the verification flag.
func (r *AccountRepository) MarkVerified(ctx context.Context, accountID int64) error {
	const query = `
		UPDATE accounts
		SET is_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetDeviceIfEmpty records the device fingerprint only if none is set yet
// (first-seen wins). Returns the account after the attempt.
func (r *AccountRepository) SetDeviceIfEmpty(ctx context.Context, accountID int64, deviceID string) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET device_id = COALESCE(device_id, $2), updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to set device fingerprint: %w", err)
	}
	return account, nil
}

// UpdateLastIP records the most recently seen network address.
func (r *AccountRepository) UpdateLastIP(ctx context.Context, accountID int64, ip string) error {
	const query = `
		UPDATE accounts
		SET last_ip = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID, ip)
	if err != nil {
		return fmt.Errorf("failed to update last IP: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Flag sets the advisory fraud flag with a reason.
func (r *AccountRepository) Flag(ctx context.Context, accountID int64, reason string) error {
	const query = `
		UPDATE accounts
		SET is_flagged = TRUE, flag_reason = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID, reason)
	if err != nil {
		return fmt.Errorf("failed to flag account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ResetDevice clears the device fingerprint, last IP and fraud flag.
func (r *AccountRepository) ResetDevice(ctx context.Context, accountID int64) error {
	const query = `
		UPDATE accounts
		SET device_id = NULL, last_ip = NULL,
		    is_flagged = FALSE, flag_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// FindByDevice returns another account sharing the device fingerprint, or
// ErrAccountNotFound if the fingerprint is unique.
func (r *AccountRepository) FindByDevice(ctx context.Context, deviceID string, excludeID int64) (*model.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts
		WHERE device_id = $1 AND id <> $2
		ORDER BY created_at ASC
		LIMIT 1
	`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, deviceID, excludeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account by device: %w", err)
	}
	return account, nil
}

// CountByIP counts other accounts whose last-seen IP matches.
func (r *AccountRepository) CountByIP(ctx context.Context, ip string, excludeID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM accounts WHERE last_ip = $1 AND id <> $2`

	var count int64
	if err := r.pool.QueryRow(ctx, query, ip, excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts by IP: %w", err)
	}
	return count, nil
}

// GetRank computes the 1-based leaderboard rank for a lifetime-earnings
// value: accounts with strictly greater earnings rank ahead.
func (r *AccountRepository) GetRank(ctx context.Context, totalEarnings int64) (int64, error) {
	const query = `SELECT 1 + COUNT(*) FROM accounts WHERE total_earnings > $1`

	var rank int64
	if err := r.pool.QueryRow(ctx, query, totalEarnings).Scan(&rank); err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	return rank, nil
}

// GetLeaderboard retrieves the top accounts by lifetime earnings.
func (r *AccountRepository) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT id, username, total_earnings
		FROM accounts
		ORDER BY total_earnings DESC, id ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Username, &e.TotalEarnings); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

// ResetLeaderboard zeroes all lifetime earnings for a new season without
// touching spendable balances.
func (r *AccountRepository) ResetLeaderboard(ctx context.Context) error {
	const query = `UPDATE accounts SET total_earnings = 0, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset leaderboard: %w", err)
	}
	return nil
}
