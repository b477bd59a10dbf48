package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earngram-backend/internal/model"
	"earngram-backend/internal/repository"
)

// AccountService handles account lifecycle, stats and moderation.
type AccountService struct {
	accountRepo *repository.AccountRepository
	txRepo      *repository.TransactionRepository
	auth        Authorizer
	strikeLimit int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	accountRepo *repository.AccountRepository,
	txRepo *repository.TransactionRepository,
	auth Authorizer,
	strikeLimit int,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		auth:        auth,
		strikeLimit: strikeLimit,
	}
}

// GetOrCreate ensures an account exists, creating one on first interaction.
// The inviter reference is set only at creation and never reassigned; a
// self-invite is ignored. On creation the inviter's child count is bumped.
func (s *AccountService) GetOrCreate(ctx context.Context, accountID int64, username string, inviterID *int64) (*model.Account, bool, error) {
	if inviterID != nil && *inviterID == accountID {
		inviterID = nil
	}

	account, created, err := s.accountRepo.GetOrCreate(ctx, accountID, username, inviterID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure account: %w", err)
	}

	if created && account.InvitedBy != nil {
		if err := s.accountRepo.IncrementReferralCount(ctx, *account.InvitedBy); err != nil {
			// The invitee exists either way; a stale counter is tolerable
			log.Error().Err(err).
				Int64("inviter_id", *account.InvitedBy).
				Int64("account_id", accountID).
				Msg("Failed to bump inviter referral count")
		}
	}

	if !created && username != "" && account.Username != username {
		if err := s.accountRepo.UpdateUsername(ctx, accountID, username); err != nil {
			log.Warn().Err(err).Int64("account_id", accountID).Msg("Failed to refresh username")
		} else {
			account.Username = username
		}
	}

	return account, created, nil
}

// GetStats reports balances, lifetime earnings and leaderboard rank.
// An unknown account yields a zero-valued snapshot, not an error.
func (s *AccountService) GetStats(ctx context.Context, accountID int64) (*model.AccountStats, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &model.AccountStats{}, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	rank, err := s.accountRepo.GetRank(ctx, account.TotalEarnings)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rank: %w", err)
	}

	stats := &model.AccountStats{
		BalanceFiat:   account.BalanceFiat,
		BalanceCrypto: account.BalanceCrypto,
		TotalEarnings: account.TotalEarnings,
		Rank:          rank,
		ReferralCount: account.ReferralCount,
		IsFlagged:     account.IsFlagged,
		IsVerified:    account.IsVerified,
	}
	if account.FlagReason != nil {
		stats.FlagReason = *account.FlagReason
	}
	if account.DeviceID != nil {
		stats.DeviceID = *account.DeviceID
	}
	return stats, nil
}

// GetLeaderboard returns the top accounts by lifetime earnings, descending.
func (s *AccountService) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	return s.accountRepo.GetLeaderboard(ctx, limit)
}

// GetTransactions returns an account's recent audit entries, newest first.
func (s *AccountService) GetTransactions(ctx context.Context, accountID int64, limit int) ([]*model.TransactionEntry, error) {
	return s.txRepo.GetByAccountID(ctx, accountID, limit)
}

// AddStrike records a policy violation. Reaching the strike limit bans the
// account permanently. Returns the account after the strike.
func (s *AccountService) AddStrike(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.AddStrike(ctx, accountID, s.strikeLimit)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to add strike: %w", err)
	}

	if account.IsBanned {
		log.Warn().Int64("account_id", accountID).Int("strikes", account.StrikeCount).Msg("Account banned after strike limit")
	}
	return account, nil
}

// Unban lifts a ban and clears the strike count. Administrator only.
func (s *AccountService) Unban(ctx context.Context, adminID, accountID int64) error {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Int64("account_id", accountID).Msg("Unauthorized unban attempt")
		return ErrUnauthorized
	}

	if err := s.accountRepo.Unban(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to unban account: %w", err)
	}

	log.Info().Int64("account_id", accountID).Int64("actor_id", adminID).Msg("Account unbanned")
	return nil
}

// MarkVerified records completion of the verification flow.
func (s *AccountService) MarkVerified(ctx context.Context, accountID int64) error {
	if err := s.accountRepo.MarkVerified(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to mark account verified: %w", err)
	}
	return nil
}

// AdminAdjustBalance applies a direct administrator credit or debit to one
// currency balance. The adjustment always appends an ADMIN_ADJUSTMENT
// entry so per-currency reconciliation holds; lifetime earnings are never
// touched by admin adjustments.
func (s *AccountService) AdminAdjustBalance(ctx context.Context, adminID, accountID int64, amount int64, currency model.Currency) (*model.Account, error) {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Int64("account_id", accountID).Msg("Unauthorized balance adjustment attempt")
		return nil, ErrUnauthorized
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}

	var account *model.Account
	var err error
	if amount > 0 {
		account, err = s.accountRepo.Credit(ctx, accountID, currency, amount)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, fmt.Errorf("failed to credit account: %w", err)
		}
	} else {
		if _, err = s.accountRepo.GetByID(ctx, accountID); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		reserved, err := s.accountRepo.Reserve(ctx, accountID, currency, -amount)
		if err != nil {
			return nil, fmt.Errorf("failed to debit account: %w", err)
		}
		if !reserved {
			return nil, ErrInsufficientBalance
		}
		account, err = s.accountRepo.GetByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload account: %w", err)
		}
	}

	desc := "Admin manual adjustment"
	if _, err := s.txRepo.Create(ctx, accountID, amount, currency, model.TxTypeAdminAdjustment, &desc); err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to log admin adjustment entry")
		return account, fmt.Errorf("adjustment applied but audit entry failed: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Int64("actor_id", adminID).
		Int64("amount", amount).
		Str("currency", string(currency)).
		Msg("Admin balance adjustment")

	return account, nil
}

// ResetLeaderboard zeroes lifetime earnings for a new season without
// touching balances. Administrator only.
func (s *AccountService) ResetLeaderboard(ctx context.Context, adminID int64) error {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Msg("Unauthorized leaderboard reset attempt")
		return ErrUnauthorized
	}

	if err := s.accountRepo.ResetLeaderboard(ctx); err != nil {
		return fmt.Errorf("failed to reset leaderboard: %w", err)
	}

	log.Info().Int64("actor_id", adminID).Msg("Leaderboard reset for new season")
	return nil
}
