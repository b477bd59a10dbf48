package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earngram-backend/internal/model"
	"earngram-backend/internal/repository"
)

// ipShareThreshold is the number of OTHER accounts that must share a
// last-seen IP before the IP signal flags an account.
const ipShareThreshold = 2

// SecurityService correlates device and network fingerprints across
// accounts to flag suspected multi-accounting. The flag is advisory: it
// never blocks the operation that triggered the sync.
type SecurityService struct {
	accountRepo *repository.AccountRepository
	auth        Authorizer
}

// NewSecurityService creates a new SecurityService instance.
func NewSecurityService(accountRepo *repository.AccountRepository, auth Authorizer) *SecurityService {
	return &SecurityService{accountRepo: accountRepo, auth: auth}
}

// Sync records an account's fingerprints and applies the multi-account
// heuristics. The device fingerprint is first-seen-wins (primary device
// policy); the IP is always refreshed. A device match takes precedence
// over an IP match in the recorded flag reason.
func (s *SecurityService) Sync(ctx context.Context, accountID int64, deviceID, ip string) (*model.Account, error) {
	account, err := s.accountRepo.SetDeviceIfEmpty(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to record device fingerprint: %w", err)
	}

	if err := s.accountRepo.UpdateLastIP(ctx, accountID, ip); err != nil {
		return nil, fmt.Errorf("failed to record last IP: %w", err)
	}

	if account.IsFlagged {
		return s.accountRepo.GetByID(ctx, accountID)
	}

	reason, err := s.detect(ctx, accountID, account.DeviceID, ip)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		if err := s.accountRepo.Flag(ctx, accountID, reason); err != nil {
			return nil, fmt.Errorf("failed to flag account: %w", err)
		}
		log.Warn().
			Int64("account_id", accountID).
			Str("reason", reason).
			Msg("Account flagged for multi-accounting")
	}

	return s.accountRepo.GetByID(ctx, accountID)
}

// detect returns a non-empty flag reason when a fingerprint signal fires.
func (s *SecurityService) detect(ctx context.Context, accountID int64, deviceID *string, ip string) (string, error) {
	if deviceID != nil {
		other, err := s.accountRepo.FindByDevice(ctx, *deviceID, accountID)
		if err == nil {
			return fmt.Sprintf("Device shared with account %d", other.ID), nil
		}
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return "", fmt.Errorf("failed to correlate device fingerprint: %w", err)
		}
	}

	count, err := s.accountRepo.CountByIP(ctx, ip, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to correlate IP address: %w", err)
	}
	if count >= ipShareThreshold {
		return fmt.Sprintf("IP shared with %d other accounts", count), nil
	}

	return "", nil
}

// ResetDevice clears an account's device fingerprint, last IP and fraud
// flag. Administrator only; unauthorized attempts mutate nothing.
func (s *SecurityService) ResetDevice(ctx context.Context, adminID, accountID int64) error {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Int64("account_id", accountID).Msg("Unauthorized device reset attempt")
		return ErrUnauthorized
	}

	if err := s.accountRepo.ResetDevice(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to reset device: %w", err)
	}

	log.Info().Int64("account_id", accountID).Int64("actor_id", adminID).Msg("Device fingerprint reset")
	return nil
}
