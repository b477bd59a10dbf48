package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"earngram-backend/internal/model"
	"earngram-backend/internal/pkg/lock"
	"earngram-backend/internal/repository"
)

// maxReferralDepth caps the referral walk regardless of configuration.
// The parent link is write-once so the graph is acyclic by construction;
// the cap is a hard stop on walk length, not cycle detection.
const maxReferralDepth = 4

// RewardService is the reward distributor: it credits an earner, walks the
// referral-parent chain applying per-level commissions, and appends one
// audit entry per hop. Lifetime earnings move only through this service.
type RewardService struct {
	accountRepo *repository.AccountRepository
	txRepo      *repository.TransactionRepository
	accountLock *lock.AccountLock
	ratesBP     []int64
	dailyBonus  int64
	bonusWindow time.Duration
}

// NewRewardService creates a new RewardService instance. ratesBP are
// per-level commission rates in basis points of the original amount.
func NewRewardService(
	accountRepo *repository.AccountRepository,
	txRepo *repository.TransactionRepository,
	accountLock *lock.AccountLock,
	ratesBP []int64,
	dailyBonus int64,
	bonusCooldownHours int,
) *RewardService {
	if len(ratesBP) > maxReferralDepth {
		ratesBP = ratesBP[:maxReferralDepth]
	}
	return &RewardService{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		accountLock: accountLock,
		ratesBP:     ratesBP,
		dailyBonus:  dailyBonus,
		bonusWindow: time.Duration(bonusCooldownHours) * time.Hour,
	}
}

// Commission computes the level's commission for an original reward amount.
// Rates apply to the original amount at every level, never compounded on a
// prior hop's commission. Levels beyond the configured rates earn nothing.
func Commission(amount int64, ratesBP []int64, level int) int64 {
	if level < 1 || level > len(ratesBP) || level > maxReferralDepth {
		return 0
	}
	return amount * ratesBP[level-1] / 10000
}

// ApplyReward credits amount to the earner's fiat balance and lifetime
// earnings, then distributes referral commissions up the parent chain.
//
// The walk is a sequence of independent single-account transactions, not
// one cross-account transaction. If a hop fails, the error is logged and
// returned, and already-applied hops stand; the caller owns retry
// idempotency (see ClaimDailyBonus for the guarded pattern).
func (s *RewardService) ApplyReward(ctx context.Context, accountID int64, amount int64, reason string) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	earner, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load earner: %w", err)
	}
	if earner.IsBanned {
		return nil, ErrAccountBanned
	}

	updated, err := s.accountRepo.CreditEarnings(ctx, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit earner: %w", err)
	}

	if _, err := s.txRepo.Create(ctx, accountID, amount, model.CurrencySAR, model.TxTypeEarning, &reason); err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to log earning entry")
		return updated, fmt.Errorf("reward applied but audit entry failed: %w", err)
	}

	if err := s.distributeCommissions(ctx, accountID, amount, earner.InvitedBy); err != nil {
		return updated, err
	}

	return updated, nil
}

// distributeCommissions walks up the referral chain for up to four levels.
// A missing parent link ends the walk without error.
func (s *RewardService) distributeCommissions(ctx context.Context, originID int64, amount int64, parentID *int64) error {
	for level := 1; level <= len(s.ratesBP); level++ {
		if parentID == nil {
			return nil
		}

		commission := Commission(amount, s.ratesBP, level)
		ancestorID := *parentID

		if commission > 0 {
			if _, err := s.accountRepo.CreditEarnings(ctx, ancestorID, commission); err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) {
					// Dangling parent reference: stop the walk, nothing to refund
					log.Warn().
						Int64("origin_id", originID).
						Int64("ancestor_id", ancestorID).
						Int("level", level).
						Msg("Referral ancestor missing, halting commission walk")
					return nil
				}
				log.Error().Err(err).
					Int64("origin_id", originID).
					Int64("ancestor_id", ancestorID).
					Int("level", level).
					Msg("Commission hop failed, prior hops stand")
				return fmt.Errorf("commission walk halted at level %d: %w", level, err)
			}

			desc := fmt.Sprintf("Referral commission (level %d) from account %d", level, originID)
			if _, err := s.txRepo.Create(ctx, ancestorID, commission, model.CurrencySAR, model.TxTypeReferral, &desc); err != nil {
				log.Error().Err(err).
					Int64("ancestor_id", ancestorID).
					Int("level", level).
					Msg("Failed to log commission entry")
				return fmt.Errorf("commission walk halted at level %d: %w", level, err)
			}
		}

		ancestor, err := s.accountRepo.GetByID(ctx, ancestorID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil
			}
			return fmt.Errorf("commission walk halted at level %d: %w", level, err)
		}
		parentID = ancestor.InvitedBy
	}
	return nil
}

// ClaimDailyBonus grants the fixed daily bonus once per cooldown window.
// The claim timestamp is stamped only after the reward succeeds, which is
// the idempotency guard: a retry inside the window is rejected before any
// balance moves.
func (s *RewardService) ClaimDailyBonus(ctx context.Context, accountID int64) (*model.Account, error) {
	s.accountLock.Lock(accountID)
	defer s.accountLock.Unlock(accountID)

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account.IsBanned {
		return nil, ErrAccountBanned
	}

	now := time.Now().UTC()
	if account.LastBonusClaim != nil {
		elapsed := now.Sub(*account.LastBonusClaim)
		if elapsed < s.bonusWindow {
			remaining := s.bonusWindow - elapsed
			hours := int(remaining.Hours())
			minutes := int(remaining.Minutes()) % 60
			return nil, fmt.Errorf("%w: next claim in %dh %dm", ErrBonusAlreadyClaimed, hours, minutes)
		}
	}

	updated, err := s.ApplyReward(ctx, accountID, s.dailyBonus, "Daily Bonus")
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.SetBonusClaim(ctx, accountID, now); err != nil {
		// The bonus was paid; a failed stamp only risks an extra grant on
		// retry, which the audit log makes visible.
		log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to stamp bonus claim time")
		return updated, fmt.Errorf("bonus granted but claim stamp failed: %w", err)
	}

	log.Info().Int64("account_id", accountID).Int64("amount", s.dailyBonus).Msg("Daily bonus claimed")
	return updated, nil
}
