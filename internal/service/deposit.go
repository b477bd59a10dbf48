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

// DepositVerifier confirms a deposit's external transaction reference.
// Verification of on-chain or bank references requires an external system;
// there is deliberately no built-in heuristic (a long-looking reference is
// not proof of payment).
type DepositVerifier interface {
	// Verify reports whether the deposit's reference is confirmed. A false
	// result without error means "not confirmed yet": the deposit stays
	// PENDING for manual review or a later sweep.
	Verify(ctx context.Context, deposit *model.DepositRequest) (bool, error)
}

// ManualReviewVerifier never confirms automatically, leaving every deposit
// to the administrator queue. It is the default verifier.
type ManualReviewVerifier struct{}

// Verify always reports not-confirmed.
func (ManualReviewVerifier) Verify(ctx context.Context, deposit *model.DepositRequest) (bool, error) {
	return false, nil
}

// DepositService implements the deposit state machine:
// PENDING -> APPROVED | REJECTED, terminal states immutable. Submission
// moves no funds; approval credits the account exactly once.
type DepositService struct {
	accountRepo *repository.AccountRepository
	depositRepo *repository.DepositRepository
	txRepo      *repository.TransactionRepository
	accountLock *lock.AccountLock
	auth        Authorizer
	verifier    DepositVerifier
	cooldown    time.Duration
}

// NewDepositService creates a new DepositService instance. A nil verifier
// defaults to ManualReviewVerifier.
func NewDepositService(
	accountRepo *repository.AccountRepository,
	depositRepo *repository.DepositRepository,
	txRepo *repository.TransactionRepository,
	accountLock *lock.AccountLock,
	auth Authorizer,
	verifier DepositVerifier,
	cooldownMinutes int,
) *DepositService {
	if verifier == nil {
		verifier = ManualReviewVerifier{}
	}
	return &DepositService{
		accountRepo: accountRepo,
		depositRepo: depositRepo,
		txRepo:      txRepo,
		accountLock: accountLock,
		auth:        auth,
		verifier:    verifier,
		cooldown:    time.Duration(cooldownMinutes) * time.Minute,
	}
}

// Submit records an unverified deposit claim. A new submission within the
// cooldown window of the previous attempt is rejected; no balance changes
// until approval.
func (s *DepositService) Submit(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, txRef string, sender *string) (*model.DepositRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}

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

	stamped, err := s.accountRepo.TouchDepositAttempt(ctx, accountID, s.cooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to check deposit cooldown: %w", err)
	}
	if !stamped {
		return nil, ErrCooldownActive
	}

	request, err := s.depositRepo.Create(ctx, accountID, amount, currency, method, txRef, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit request: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Int64("request_id", request.ID).
		Int64("amount", amount).
		Str("currency", string(currency)).
		Str("method", method).
		Msg("Deposit submitted")

	return request, nil
}

// Process transitions a PENDING deposit to a terminal state. Approval
// credits the submitted amount and appends a DEPOSIT entry; rejection
// moves no funds. Administrator only.
func (s *DepositService) Process(ctx context.Context, adminID, requestID int64, approve bool) (*model.DepositRequest, error) {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Int64("request_id", requestID).Msg("Unauthorized deposit processing attempt")
		return nil, ErrUnauthorized
	}
	return s.process(ctx, requestID, approve)
}

// process applies the transition without the administrator gate. The
// verification sweep re-enters here as a trusted internal actor.
func (s *DepositService) process(ctx context.Context, requestID int64, approve bool) (*model.DepositRequest, error) {
	status := model.StatusApproved
	if !approve {
		status = model.StatusRejected
	}

	request, err := s.depositRepo.MarkProcessed(ctx, requestID, status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to process deposit: %w", err)
	}

	if approve {
		if _, err := s.accountRepo.Credit(ctx, request.AccountID, request.Currency, request.Amount); err != nil {
			log.Error().Err(err).
				Int64("request_id", requestID).
				Int64("account_id", request.AccountID).
				Msg("Deposit approved but credit failed")
			return request, fmt.Errorf("deposit approved but credit failed: %w", err)
		}
		desc := fmt.Sprintf("Deposit via %s (ref %s)", request.Method, request.TxRef)
		if _, err := s.txRepo.Create(ctx, request.AccountID, request.Amount, request.Currency, model.TxTypeDeposit, &desc); err != nil {
			log.Error().Err(err).Int64("request_id", requestID).Msg("Failed to log deposit entry")
			return request, fmt.Errorf("deposit credited but audit entry failed: %w", err)
		}
	}

	log.Info().
		Int64("request_id", requestID).
		Str("status", status).
		Msg("Deposit processed")

	return request, nil
}

// sweepBatchSize bounds one verification sweep pass.
const sweepBatchSize = 100

// RunVerificationSweep checks PENDING deposits against the verifier and
// approves the confirmed ones. It runs detached from any submit request
// and must not swallow failures silently: every error is logged and the
// sweep continues with the next deposit.
func (s *DepositService) RunVerificationSweep(ctx context.Context) {
	pending, err := s.depositRepo.ListByStatus(ctx, model.StatusPending, sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Verification sweep: failed to list pending deposits")
		return
	}
	if len(pending) == 0 {
		return
	}

	var approved int
	for _, deposit := range pending {
		confirmed, err := s.verifier.Verify(ctx, deposit)
		if err != nil {
			log.Error().Err(err).
				Int64("request_id", deposit.ID).
				Str("tx_ref", deposit.TxRef).
				Msg("Verification sweep: verifier error, deposit left pending")
			continue
		}
		if !confirmed {
			continue
		}

		if _, err := s.process(ctx, deposit.ID, true); err != nil {
			// AlreadyProcessed here just means an administrator beat us to it
			if errors.Is(err, ErrAlreadyProcessed) {
				continue
			}
			log.Error().Err(err).
				Int64("request_id", deposit.ID).
				Msg("Verification sweep: failed to approve confirmed deposit")
			continue
		}
		approved++
	}

	log.Info().
		Int("checked", len(pending)).
		Int("approved", approved).
		Msg("Deposit verification sweep completed")
}

// PendingQueue lists PENDING deposits, oldest first, for review.
func (s *DepositService) PendingQueue(ctx context.Context, limit int) ([]*model.DepositRequest, error) {
	return s.depositRepo.ListByStatus(ctx, model.StatusPending, limit)
}
