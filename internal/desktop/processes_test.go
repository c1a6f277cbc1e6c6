package desktop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProcessName(t *testing.T) {
	assert.Equal(t, "chrome", NormalizeProcessName(" Chrome.exe "))
	assert.Equal(t, "spotify", NormalizeProcessName("Spotify.app"))
}

func TestIgnoredProcess(t *testing.T) {
	for _, name := range []string{"bash", "kworker/0:1", "crashpad_handler-helper", "svchost"} {
		assert.True(t, ignoredProcess(name), name)
	}
	for _, name := range []string{"chrome", "code", "spotify"} {
		assert.False(t, ignoredProcess(name), name)
	}
}

func TestSameUserHandlesDomainPrefix(t *testing.T) {
	assert.True(t, sameUser(`DESKTOP-1\harsh`, "harsh"))
	assert.True(t, sameUser("alice", "ALICE"))
	assert.False(t, sameUser("root", "alice"))
}

func TestEmptyEnumerator(t *testing.T) {
	names, err := EmptyEnumerator{}.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUserProcessesSnapshotIsSortedAndUnique(t *testing.T) {
	names, err := NewUserProcesses().Snapshot(context.Background())
	if err != nil {
		t.Skipf("process enumeration unavailable: %v", err)
	}
	seen := map[string]bool{}
	for i, n := range names {
		assert.False(t, seen[n], "duplicate %q", n)
		seen[n] = true
		if i > 0 {
			assert.LessOrEqual(t, names[i-1], n)
		}
	}
}

func TestSystemStatsSummary(t *testing.T) {
	s := SystemStats{
		CPUPercent:   12.5,
		Memory:       MemoryStats{TotalGB: 16, UsedPercent: 40},
		TemperatureC: 55,
		OS:           "ubuntu 24.04",
		UptimeHours:  3.2,
	}
	assert.Equal(t, "CPU 12.5%, memory 40.0% of 16.0 GB used, temperature 55C, OS ubuntu 24.04, uptime 3.2h", s.Summary())
}
