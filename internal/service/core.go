package service

import (
	"context"

	"earngram-backend/internal/model"
)

// Core bundles the boundary operations consumed by the excluded
// collaborators (messaging layer, HTTP layer). It holds no state of its
// own; everything delegates to the underlying services.
type Core struct {
	Accounts    *AccountService
	Rewards     *RewardService
	Withdrawals *WithdrawalService
	Deposits    *DepositService
	Security    *SecurityService
}

// NewCore creates the boundary facade.
func NewCore(
	accounts *AccountService,
	rewards *RewardService,
	withdrawals *WithdrawalService,
	deposits *DepositService,
	security *SecurityService,
) *Core {
	return &Core{
		Accounts:    accounts,
		Rewards:     rewards,
		Withdrawals: withdrawals,
		Deposits:    deposits,
		Security:    security,
	}
}

// GetOrCreateAccount ensures an account exists for an identity.
func (c *Core) GetOrCreateAccount(ctx context.Context, accountID int64, username string, inviterID *int64) (*model.Account, bool, error) {
	return c.Accounts.GetOrCreate(ctx, accountID, username, inviterID)
}

// ApplyReward credits a reward and distributes referral commissions.
func (c *Core) ApplyReward(ctx context.Context, accountID int64, amount int64, reason string) (*model.Account, error) {
	return c.Rewards.ApplyReward(ctx, accountID, amount, reason)
}

// ClaimDailyBonus grants the time-gated daily bonus.
func (c *Core) ClaimDailyBonus(ctx context.Context, accountID int64) (*model.Account, error) {
	return c.Rewards.ClaimDailyBonus(ctx, accountID)
}

// GetStats reports balances, lifetime earnings and rank.
func (c *Core) GetStats(ctx context.Context, accountID int64) (*model.AccountStats, error) {
	return c.Accounts.GetStats(ctx, accountID)
}

// GetLeaderboard returns the lifetime-earnings leaderboard.
func (c *Core) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	return c.Accounts.GetLeaderboard(ctx, limit)
}

// RequestWithdrawal reserves funds and opens a PENDING withdrawal.
func (c *Core) RequestWithdrawal(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, address string) (*model.WithdrawalRequest, error) {
	return c.Withdrawals.Request(ctx, accountID, amount, currency, method, address)
}

// ProcessWithdrawal resolves a PENDING withdrawal (administrator only).
func (c *Core) ProcessWithdrawal(ctx context.Context, adminID, requestID int64, approve bool) (*model.WithdrawalRequest, error) {
	return c.Withdrawals.Process(ctx, adminID, requestID, approve)
}

// SubmitDeposit records an unverified deposit claim.
func (c *Core) SubmitDeposit(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, txRef string, sender *string) (*model.DepositRequest, error) {
	return c.Deposits.Submit(ctx, accountID, amount, currency, method, txRef, sender)
}

// ProcessDeposit resolves a PENDING deposit (administrator only).
func (c *Core) ProcessDeposit(ctx context.Context, adminID, requestID int64, approve bool) (*model.DepositRequest, error) {
	return c.Deposits.Process(ctx, adminID, requestID, approve)
}

// SyncSecurity records fingerprints and runs the multi-account heuristics.
func (c *Core) SyncSecurity(ctx context.Context, accountID int64, deviceID, ip string) (*model.Account, error) {
	return c.Security.Sync(ctx, accountID, deviceID, ip)
}

// ResetDevice clears fingerprints and fraud flag (administrator only).
func (c *Core) ResetDevice(ctx context.Context, adminID, accountID int64) error {
	return c.Security.ResetDevice(ctx, adminID, accountID)
}

// AdminAdjustBalance applies a direct administrator credit or debit.
func (c *Core) AdminAdjustBalance(ctx context.Context, adminID, accountID int64, amount int64, currency model.Currency) (*model.Account, error) {
	return c.Accounts.AdminAdjustBalance(ctx, adminID, accountID, amount, currency)
}
