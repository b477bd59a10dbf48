// Property-based tests for the reward distributor.
package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// defaultRatesBP mirrors the configured commission rates: 10%, 5%, 2%, 1%.
var defaultRatesBP = []int64{1000, 500, 200, 100}

// simAccount is an in-memory account for distribution simulations.
type simAccount struct {
	ID            int64
	Balance       int64
	TotalEarnings int64
	InvitedBy     *int64
}

// simulateDistribution mirrors RewardService.ApplyReward plus the referral
// walk over an in-memory account map. Returns the per-account credited
// amounts.
func simulateDistribution(accounts map[int64]*simAccount, earnerID, amount int64, ratesBP []int64) map[int64]int64 {
	credited := make(map[int64]int64)

	earner, ok := accounts[earnerID]
	if !ok {
		return credited
	}
	earner.Balance += amount
	earner.TotalEarnings += amount
	credited[earnerID] = amount

	parentID := earner.InvitedBy
	for level := 1; level <= len(ratesBP); level++ {
		if parentID == nil {
			break
		}
		ancestor, ok := accounts[*parentID]
		if !ok {
			break
		}
		commission := Commission(amount, ratesBP, level)
		ancestor.Balance += commission
		ancestor.TotalEarnings += commission
		credited[ancestor.ID] += commission
		parentID = ancestor.InvitedBy
	}

	return credited
}

// buildChain creates a referral chain of the given length: index 0 is the
// earner, index i+1 invited index i.
func buildChain(length int) (map[int64]*simAccount, []int64) {
	accounts := make(map[int64]*simAccount)
	ids := make([]int64, length)
	for i := 0; i < length; i++ {
		id := int64(i + 1)
		ids[i] = id
		accounts[id] = &simAccount{ID: id}
		if i > 0 {
			parent := id
			accounts[ids[i-1]].InvitedBy = &parent
		}
	}
	return accounts, ids
}

// TestCommissionRatesProperty checks that each ancestor level receives the
// fixed rate of the original amount, never compounded on a prior hop.
func TestCommissionRatesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 10_000_000).Draw(t, "amount")
		chainLen := rapid.IntRange(1, 8).Draw(t, "chainLen")

		accounts, ids := buildChain(chainLen)
		credited := simulateDistribution(accounts, ids[0], amount, defaultRatesBP)

		if credited[ids[0]] != amount {
			t.Fatalf("earner credited %d, want %d", credited[ids[0]], amount)
		}

		for level := 1; level < chainLen; level++ {
			want := int64(0)
			if level <= len(defaultRatesBP) {
				want = amount * defaultRatesBP[level-1] / 10000
			}
			if credited[ids[level]] != want {
				t.Fatalf("level %d ancestor credited %d, want %d (amount=%d)",
					level, credited[ids[level]], want, amount)
			}
		}
	})
}

// TestCommissionWalkCapProperty checks that no ancestor beyond the fourth
// level ever receives a commission, regardless of chain length.
func TestCommissionWalkCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 10_000_000).Draw(t, "amount")
		chainLen := rapid.IntRange(6, 12).Draw(t, "chainLen")

		accounts, ids := buildChain(chainLen)
		credited := simulateDistribution(accounts, ids[0], amount, defaultRatesBP)

		for level := 5; level < chainLen; level++ {
			if credited[ids[level]] != 0 {
				t.Fatalf("level %d ancestor credited %d, want 0", level, credited[ids[level]])
			}
		}
	})
}

// TestCommissionMonotoneProperty checks that the total paid out never
// exceeds the original amount plus the summed configured rates.
func TestCommissionMonotoneProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 10_000_000).Draw(t, "amount")
		chainLen := rapid.IntRange(1, 10).Draw(t, "chainLen")

		accounts, ids := buildChain(chainLen)
		credited := simulateDistribution(accounts, ids[0], amount, defaultRatesBP)

		var total int64
		for _, c := range credited {
			total += c
		}

		// 10% + 5% + 2% + 1% = 18% ceiling on top of the original
		ceiling := amount + amount*1800/10000
		if total > ceiling {
			t.Fatalf("total payout %d exceeds ceiling %d (amount=%d, chainLen=%d)",
				total, ceiling, amount, chainLen)
		}
		if total < amount {
			t.Fatalf("total payout %d below original amount %d", total, amount)
		}
	})
}

// TestCommissionLevels verifies the exact per-level rates.
func TestCommissionLevels(t *testing.T) {
	// 10.00 SAR in halalas
	amount := int64(1000)

	assert.Equal(t, int64(100), Commission(amount, defaultRatesBP, 1))
	assert.Equal(t, int64(50), Commission(amount, defaultRatesBP, 2))
	assert.Equal(t, int64(20), Commission(amount, defaultRatesBP, 3))
	assert.Equal(t, int64(10), Commission(amount, defaultRatesBP, 4))
	assert.Equal(t, int64(0), Commission(amount, defaultRatesBP, 5))
	assert.Equal(t, int64(0), Commission(amount, defaultRatesBP, 0))
}

// TestTwoLevelChainScenario covers the documented scenario: X invited by Y
// invited by Z, reward of 10.00 to X pays Y 1.00 and Z 0.50 with no third
// level payout.
func TestTwoLevelChainScenario(t *testing.T) {
	accounts, ids := buildChain(3) // ids[0]=X, ids[1]=Y, ids[2]=Z
	credited := simulateDistribution(accounts, ids[0], 1000, defaultRatesBP)

	assert.Equal(t, int64(1000), credited[ids[0]])
	assert.Equal(t, int64(100), credited[ids[1]])
	assert.Equal(t, int64(50), credited[ids[2]])
	assert.Len(t, credited, 3)

	assert.Equal(t, int64(1000), accounts[ids[0]].TotalEarnings)
	assert.Equal(t, int64(100), accounts[ids[1]].TotalEarnings)
	assert.Equal(t, int64(50), accounts[ids[2]].TotalEarnings)
}

// TestRootAccountNoAncestors checks that a reward to an account without an
// inviter credits only that account.
func TestRootAccountNoAncestors(t *testing.T) {
	accounts := map[int64]*simAccount{7: {ID: 7}}
	credited := simulateDistribution(accounts, 7, 555, defaultRatesBP)

	assert.Len(t, credited, 1)
	assert.Equal(t, int64(555), credited[7])
}
