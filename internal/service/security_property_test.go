// Property-based tests for the multi-account heuristics.
package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// fingerprintSim mirrors SecurityService.Sync over an in-memory fleet of
// accounts: first-seen device wins, IP always refreshed, device match
// takes precedence over IP sharing in the recorded reason.
type fingerprintSim struct {
	Device *string
	IP     string
	Reason string
}

func simulateSync(fleet map[int64]*fingerprintSim, accountID int64, deviceID, ip string) {
	acct := fleet[accountID]
	if acct == nil {
		acct = &fingerprintSim{}
		fleet[accountID] = acct
	}
	if acct.Device == nil {
		d := deviceID
		acct.Device = &d
	}
	acct.IP = ip

	if acct.Reason != "" {
		return
	}

	if acct.Device != nil {
		var firstMatch int64
		var found bool
		for id, other := range fleet {
			if id == accountID || other.Device == nil {
				continue
			}
			if *other.Device == *acct.Device && (!found || id < firstMatch) {
				firstMatch = id
				found = true
			}
		}
		if found {
			acct.Reason = fmt.Sprintf("Device shared with account %d", firstMatch)
			return
		}
	}

	var ipCount int64
	for id, other := range fleet {
		if id != accountID && other.IP == ip {
			ipCount++
		}
	}
	if ipCount >= ipShareThreshold {
		acct.Reason = fmt.Sprintf("IP shared with %d other accounts", ipCount)
	}
}

// TestDeviceFirstSeenWinsProperty checks that repeated syncs never replace
// the initially recorded device fingerprint.
func TestDeviceFirstSeenWinsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numSyncs := rapid.IntRange(2, 10).Draw(t, "numSyncs")

		fleet := map[int64]*fingerprintSim{}
		first := rapid.StringMatching(`dev-[a-f0-9]{8}`).Draw(t, "firstDevice")
		simulateSync(fleet, 1, first, "10.0.0.1")

		for i := 1; i < numSyncs; i++ {
			later := rapid.StringMatching(`dev-[a-f0-9]{8}`).Draw(t, "laterDevice")
			simulateSync(fleet, 1, later, "10.0.0.1")
		}

		if *fleet[1].Device != first {
			t.Fatalf("device replaced: %q, want %q", *fleet[1].Device, first)
		}
	})
}

// TestSharedDeviceFlagsSecondAccount checks the two-account shared-device
// scenario: the second account is flagged citing the first.
func TestSharedDeviceFlagsSecondAccount(t *testing.T) {
	fleet := map[int64]*fingerprintSim{}

	simulateSync(fleet, 1, "dev-abc123", "10.0.0.1")
	assert.Empty(t, fleet[1].Reason)

	simulateSync(fleet, 2, "dev-abc123", "10.0.0.2")
	assert.Equal(t, "Device shared with account 1", fleet[2].Reason)
}

// TestSharedIPFlagsThirdAccount checks the shared-IP scenario: a third
// account on a distinct device gets flagged once two other accounts share
// its IP.
func TestSharedIPFlagsThirdAccount(t *testing.T) {
	fleet := map[int64]*fingerprintSim{}

	simulateSync(fleet, 1, "dev-a", "10.0.0.9")
	simulateSync(fleet, 2, "dev-b", "10.0.0.9")
	assert.Empty(t, fleet[2].Reason)

	simulateSync(fleet, 3, "dev-c", "10.0.0.9")
	assert.Equal(t, "IP shared with 2 other accounts", fleet[3].Reason)
}

// TestDevicePrecedenceOverIP checks that when both signals fire the
// recorded reason cites the device match.
func TestDevicePrecedenceOverIP(t *testing.T) {
	fleet := map[int64]*fingerprintSim{}

	simulateSync(fleet, 1, "dev-x", "10.0.0.5")
	simulateSync(fleet, 2, "dev-y", "10.0.0.5")
	simulateSync(fleet, 3, "dev-x", "10.0.0.5")

	assert.Contains(t, fleet[3].Reason, "Device shared with account 1")
}
