// Package model defines the data models for the rewards platform backend.
package model

import "time"

// Currency identifies one of the two independently tracked balances.
// Amounts are stored as int64 minor units: SAR uses 2 decimal places
// (halalas), USDT uses 6 (micro units). The two are never converted.
type Currency string

const (
	CurrencySAR  Currency = "SAR"
	CurrencyUSDT Currency = "USDT"
)

// Valid reports whether c is a known currency code.
func (c Currency) Valid() bool {
	return c == CurrencySAR || c == CurrencyUSDT
}

// Account represents a platform user and is the source of truth for balances.
type Account struct {
	ID             int64      `db:"id"`
	Username       string     `db:"username"`
	BalanceFiat    int64      `db:"balance_fiat"`
	BalanceCrypto  int64      `db:"balance_crypto"`
	TotalEarnings  int64      `db:"total_earnings"`
	InvitedBy      *int64     `db:"invited_by"`
	ReferralCount  int64      `db:"referral_count"`
	IsBanned       bool       `db:"is_banned"`
	StrikeCount    int        `db:"strike_count"`
	IsFlagged      bool       `db:"is_flagged"`
	FlagReason     *string    `db:"flag_reason"`
	DeviceID       *string    `db:"device_id"`
	LastIP         *string    `db:"last_ip"`
	LastDepositAt  *time.Time `db:"last_deposit_at"`
	LastBonusClaim *time.Time `db:"last_bonus_claim_at"`
	IsVerified     bool       `db:"is_verified"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Balance returns the account's balance for the given currency.
func (a *Account) Balance(currency Currency) int64 {
	if currency == CurrencyUSDT {
		return a.BalanceCrypto
	}
	return a.BalanceFiat
}

// TransactionEntry is one immutable row of the append-only audit log.
// The sum of entry amounts for an account, per currency, equals that
// account's current balance for the currency.
type TransactionEntry struct {
	ID          int64     `db:"id"`
	AccountID   int64     `db:"account_id"`
	Amount      int64     `db:"amount"`
	Currency    Currency  `db:"currency"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction entry types.
const (
	TxTypeEarning         = "EARNING"
	TxTypeDeposit         = "DEPOSIT"
	TxTypeWithdrawal      = "WITHDRAWAL"
	TxTypeReferral        = "REFERRAL_COMMISSION"
	TxTypeAdminAdjustment = "ADMIN_ADJUSTMENT"
)

// Request statuses shared by withdrawals and deposits.
// PENDING transitions once to a terminal status and never back.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
)

// WithdrawalRequest tracks one withdrawal attempt. Funds are reserved
// (deducted) at request time; rejection refunds the reserved amount.
type WithdrawalRequest struct {
	ID          int64      `db:"id"`
	AccountID   int64      `db:"account_id"`
	Amount      int64      `db:"amount"`
	Currency    Currency   `db:"currency"`
	Method      string     `db:"method"`
	Address     string     `db:"address"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

// DepositRequest tracks one unverified deposit submission. No funds move
// until an administrator (or the verification sweep) approves it.
type DepositRequest struct {
	ID          int64      `db:"id"`
	AccountID   int64      `db:"account_id"`
	Amount      int64      `db:"amount"`
	Currency    Currency   `db:"currency"`
	Method      string     `db:"method"`
	TxRef       string     `db:"tx_ref"`
	Sender      *string    `db:"sender"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

// AccountStats is the snapshot reported to the mini-app home screen.
// An unknown account yields the zero value rather than an error.
type AccountStats struct {
	BalanceFiat   int64
	BalanceCrypto int64
	TotalEarnings int64
	Rank          int64
	ReferralCount int64
	IsFlagged     bool
	FlagReason    string
	DeviceID      string
	IsVerified    bool
}

// LeaderboardEntry is one row of the lifetime-earnings leaderboard.
type LeaderboardEntry struct {
	AccountID     int64  `db:"account_id"`
	Username      string `db:"username"`
	TotalEarnings int64  `db:"total_earnings"`
}
