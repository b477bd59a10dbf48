// Package service provides business logic implementations.
package service

import "errors"

// Typed outcomes returned to callers. These are validation failures, never
// fatal: the boundary layers translate them into user-facing reasons.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrRequestNotFound     = errors.New("request not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCooldownActive      = errors.New("deposit cooldown active")
	ErrAlreadyProcessed    = errors.New("request already processed")
	ErrBonusAlreadyClaimed = errors.New("daily bonus already claimed")
	ErrUnauthorized        = errors.New("administrator privileges required")
	ErrAccountBanned       = errors.New("account is banned")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInvalidCurrency     = errors.New("unknown currency")
)

// Authorizer answers whether an identity may perform administrator-only
// operations. config.Config satisfies it.
type Authorizer interface {
	IsAdmin(accountID int64) bool
}
