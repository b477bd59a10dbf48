// Property-based tests for the deposit state machine and cooldown.
package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// depositSim is an in-memory model of one account plus one deposit
// request, mirroring DepositService semantics.
type depositSim struct {
	Balance     int64
	LastAttempt *time.Time
	Amount      int64
	Status      string
}

const simCooldown = 5 * time.Minute

// simulateSubmit mirrors DepositService.Submit: cooldown gate, attempt
// stamp, no balance change.
func simulateSubmit(sim depositSim, amount int64, now time.Time) (depositSim, error) {
	if amount <= 0 {
		return sim, ErrInvalidAmount
	}
	if sim.LastAttempt != nil && now.Sub(*sim.LastAttempt) < simCooldown {
		return sim, ErrCooldownActive
	}
	sim.LastAttempt = &now
	sim.Amount = amount
	sim.Status = "PENDING"
	return sim, nil
}

// simulateDepositProcess mirrors DepositService.process.
func simulateDepositProcess(sim depositSim, approve bool) (depositSim, error) {
	if sim.Status != "PENDING" {
		return sim, ErrAlreadyProcessed
	}
	if approve {
		sim.Status = "APPROVED"
		sim.Balance += sim.Amount
	} else {
		sim.Status = "REJECTED"
	}
	return sim, nil
}

// TestDepositCooldownProperty checks that a second submission within the
// cooldown window is rejected without any state change, and one after the
// window succeeds.
func TestDepositCooldownProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 1_000_000).Draw(t, "amount")
		gapSeconds := rapid.Int64Range(0, 3600).Draw(t, "gapSeconds")

		start := time.Unix(1_700_000_000, 0)
		sim, err := simulateSubmit(depositSim{}, amount, start)
		if err != nil {
			t.Fatalf("first submit failed: %v", err)
		}

		second := start.Add(time.Duration(gapSeconds) * time.Second)
		next, err := simulateSubmit(sim, amount, second)

		if second.Sub(start) < simCooldown {
			if err == nil {
				t.Fatalf("expected CooldownActive after %ds gap", gapSeconds)
			}
			if next.Balance != sim.Balance {
				t.Fatal("rejected submission changed balance")
			}
			if !next.LastAttempt.Equal(start) {
				t.Fatal("rejected submission moved the attempt stamp")
			}
		} else if err != nil {
			t.Fatalf("submit after cooldown failed: %v", err)
		}
	})
}

// TestDepositSubmitMovesNoFundsProperty checks that submission never
// changes the balance regardless of outcome.
func TestDepositSubmitMovesNoFundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, 1_000_000).Draw(t, "balance")
		amount := rapid.Int64Range(1, 1_000_000).Draw(t, "amount")

		sim, err := simulateSubmit(depositSim{Balance: balance}, amount, time.Unix(1_700_000_000, 0))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if sim.Balance != balance {
			t.Fatalf("submission moved funds: %d -> %d", balance, sim.Balance)
		}
	})
}

// TestDepositApprovalCreditsOnceProperty checks that approval credits the
// submitted amount exactly once and repeat processing is a no-op.
func TestDepositApprovalCreditsOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, 1_000_000).Draw(t, "balance")
		amount := rapid.Int64Range(1, 1_000_000).Draw(t, "amount")

		sim, err := simulateSubmit(depositSim{Balance: balance}, amount, time.Unix(1_700_000_000, 0))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}

		approved, err := simulateDepositProcess(sim, true)
		if err != nil {
			t.Fatalf("approve failed: %v", err)
		}
		if approved.Balance != balance+amount {
			t.Fatalf("approval credited %d, want %d", approved.Balance-balance, amount)
		}

		again, err := simulateDepositProcess(approved, true)
		if err == nil {
			t.Fatal("second approval should fail with AlreadyProcessed")
		}
		if again.Balance != approved.Balance {
			t.Fatal("second approval changed balance")
		}
	})
}

// TestDepositRejectionMovesNoFunds checks that rejection never credits.
func TestDepositRejectionMovesNoFunds(t *testing.T) {
	sim, err := simulateSubmit(depositSim{Balance: 500}, 200, time.Unix(1_700_000_000, 0))
	assert.NoError(t, err)

	rejected, err := simulateDepositProcess(sim, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(500), rejected.Balance)
	assert.Equal(t, "REJECTED", rejected.Status)

	_, err = simulateDepositProcess(rejected, true)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}
