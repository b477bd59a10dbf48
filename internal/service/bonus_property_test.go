// Property-based tests for the daily bonus claim gate.
package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// bonusSim is an in-memory model of the daily-bonus gate, mirroring
// RewardService.ClaimDailyBonus: the claim stamp moves only after the
// grant succeeds.
type bonusSim struct {
	Balance       int64
	TotalEarnings int64
	LastClaim     *time.Time
}

const (
	simBonusWindow = 24 * time.Hour
	simBonusAmount = int64(100) // 1.00 SAR in halalas
)

func simulateClaim(sim bonusSim, now time.Time) (bonusSim, error) {
	if sim.LastClaim != nil {
		elapsed := now.Sub(*sim.LastClaim)
		if elapsed < simBonusWindow {
			remaining := simBonusWindow - elapsed
			hours := int(remaining.Hours())
			minutes := int(remaining.Minutes()) % 60
			return sim, fmt.Errorf("%w: next claim in %dh %dm", ErrBonusAlreadyClaimed, hours, minutes)
		}
	}
	sim.Balance += simBonusAmount
	sim.TotalEarnings += simBonusAmount
	sim.LastClaim = &now
	return sim, nil
}

// TestBonusClaimWindowProperty checks that a second claim inside the
// window is rejected with no earnings change, and one outside succeeds.
func TestBonusClaimWindowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gapMinutes := rapid.Int64Range(0, 72*60).Draw(t, "gapMinutes")

		start := time.Unix(1_700_000_000, 0)
		sim, err := simulateClaim(bonusSim{}, start)
		if err != nil {
			t.Fatalf("first claim failed: %v", err)
		}

		second := start.Add(time.Duration(gapMinutes) * time.Minute)
		next, err := simulateClaim(sim, second)

		if second.Sub(start) < simBonusWindow {
			if !errors.Is(err, ErrBonusAlreadyClaimed) {
				t.Fatalf("expected AlreadyClaimed after %dm gap, got %v", gapMinutes, err)
			}
			if next.TotalEarnings != sim.TotalEarnings {
				t.Fatal("rejected claim changed lifetime earnings")
			}
			if next.Balance != sim.Balance {
				t.Fatal("rejected claim changed balance")
			}
		} else {
			if err != nil {
				t.Fatalf("claim after window failed: %v", err)
			}
			if next.TotalEarnings != sim.TotalEarnings+simBonusAmount {
				t.Fatal("successful claim did not credit the bonus")
			}
		}
	})
}

// TestBonusRetrySequence walks the documented retry scenario: claim,
// immediate retry fails, a claim after the window succeeds.
func TestBonusRetrySequence(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	sim, err := simulateClaim(bonusSim{}, start)
	assert.NoError(t, err)
	assert.Equal(t, simBonusAmount, sim.Balance)

	again, err := simulateClaim(sim, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)
	assert.Equal(t, sim.TotalEarnings, again.TotalEarnings)

	later, err := simulateClaim(sim, start.Add(25*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 2*simBonusAmount, later.Balance)
}

// TestBonusRejectionReportsRemainingTime checks the failure message
// carries the remaining wait in hours and minutes.
func TestBonusRejectionReportsRemainingTime(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	sim, err := simulateClaim(bonusSim{}, start)
	assert.NoError(t, err)

	_, err = simulateClaim(sim, start.Add(10*time.Hour+30*time.Minute))
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)
	assert.Contains(t, err.Error(), "13h 30m")
}
