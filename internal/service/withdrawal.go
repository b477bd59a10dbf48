package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"earngram-backend/internal/model"
	"earngram-backend/internal/pkg/lock"
	"earngram-backend/internal/repository"
)

// WithdrawalService implements the withdrawal state machine:
// PENDING -> COMPLETED | REJECTED, terminal states immutable. Funds are
// reserved at request time and refunded only on rejection.
type WithdrawalService struct {
	accountRepo    *repository.AccountRepository
	withdrawalRepo *repository.WithdrawalRepository
	txRepo         *repository.TransactionRepository
	accountLock    *lock.AccountLock
	auth           Authorizer
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(
	accountRepo *repository.AccountRepository,
	withdrawalRepo *repository.WithdrawalRepository,
	txRepo *repository.TransactionRepository,
	accountLock *lock.AccountLock,
	auth Authorizer,
) *WithdrawalService {
	return &WithdrawalService{
		accountRepo:    accountRepo,
		withdrawalRepo: withdrawalRepo,
		txRepo:         txRepo,
		accountLock:    accountLock,
		auth:           auth,
	}
}

// Request reserves amount on the account and creates a PENDING withdrawal.
// The deduction happens before administrator review; an insufficient
// balance rejects the request with no state change.
func (s *WithdrawalService) Request(ctx context.Context, accountID int64, amount int64, currency model.Currency, method, address string) (*model.WithdrawalRequest, error) {
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

	reserved, err := s.accountRepo.Reserve(ctx, accountID, currency, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve funds: %w", err)
	}
	if !reserved {
		return nil, ErrInsufficientBalance
	}

	request, err := s.withdrawalRepo.Create(ctx, accountID, amount, currency, method, address)
	if err != nil {
		// Undo the reservation so no funds are stranded without a record.
		if _, refundErr := s.accountRepo.Credit(ctx, accountID, currency, amount); refundErr != nil {
			log.Error().Err(refundErr).
				Int64("account_id", accountID).
				Int64("amount", amount).
				Msg("Failed to release reservation after create failure")
		}
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	desc := fmt.Sprintf("Payout request via %s", method)
	if _, err := s.txRepo.Create(ctx, accountID, -amount, currency, model.TxTypeWithdrawal, &desc); err != nil {
		log.Error().Err(err).Int64("request_id", request.ID).Msg("Failed to log withdrawal entry")
		return request, fmt.Errorf("withdrawal recorded but audit entry failed: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Int64("request_id", request.ID).
		Int64("amount", amount).
		Str("currency", string(currency)).
		Msg("Withdrawal requested")

	return request, nil
}

// Process transitions a PENDING request to a terminal state. Approval
// leaves the reserved funds deducted; rejection refunds the exact reserved
// amount to the same currency balance. Administrator only.
func (s *WithdrawalService) Process(ctx context.Context, adminID, requestID int64, approve bool) (*model.WithdrawalRequest, error) {
	if !s.auth.IsAdmin(adminID) {
		log.Warn().Int64("actor_id", adminID).Int64("request_id", requestID).Msg("Unauthorized withdrawal processing attempt")
		return nil, ErrUnauthorized
	}

	status := model.StatusCompleted
	if !approve {
		status = model.StatusRejected
	}

	request, err := s.withdrawalRepo.MarkProcessed(ctx, requestID, status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to process withdrawal: %w", err)
	}

	if !approve {
		if _, err := s.accountRepo.Credit(ctx, request.AccountID, request.Currency, request.Amount); err != nil {
			log.Error().Err(err).
				Int64("request_id", requestID).
				Int64("account_id", request.AccountID).
				Msg("Failed to refund rejected withdrawal")
			return request, fmt.Errorf("withdrawal rejected but refund failed: %w", err)
		}
		desc := "Withdrawal refund"
		if _, err := s.txRepo.Create(ctx, request.AccountID, request.Amount, request.Currency, model.TxTypeWithdrawal, &desc); err != nil {
			log.Error().Err(err).Int64("request_id", requestID).Msg("Failed to log refund entry")
			return request, fmt.Errorf("refund applied but audit entry failed: %w", err)
		}
	}

	log.Info().
		Int64("request_id", requestID).
		Str("status", status).
		Int64("actor_id", adminID).
		Msg("Withdrawal processed")

	return request, nil
}

// PendingQueue lists PENDING withdrawals, oldest first, for review.
func (s *WithdrawalService) PendingQueue(ctx context.Context, limit int) ([]*model.WithdrawalRequest, error) {
	return s.withdrawalRepo.ListByStatus(ctx, model.StatusPending, limit)
}
