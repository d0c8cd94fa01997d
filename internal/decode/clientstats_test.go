// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/clock"
)

func newTestClientStats(t *testing.T) (*ClientStats, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewClientStats(clk, testLogger()), clk
}

func TestClientStatsObserve(t *testing.T) {
	cs, _ := newTestClientStats(t)

	cs.Observe(mustEvent(t,
		`{"event_type":"client_stats","src_ip":"10.9.9.9","program":"sshd","message":"accepted","timestamp":"2026-03-01T11:59:00+0000"}`))

	snap := cs.Snapshot()
	require.Len(t, snap, 1)
	ent := snap["10.9.9.9"]
	assert.Equal(t, "sshd", ent.Program)
	assert.Equal(t, "accepted", ent.Message)
	assert.Equal(t, "2026-03-01T11:59:00+0000", ent.LastSeen)
}

func TestClientStatsLatestReportWins(t *testing.T) {
	cs, _ := newTestClientStats(t)

	cs.Observe(mustEvent(t, `{"event_type":"client_stats","src_ip":"10.9.9.9","program":"sshd"}`))
	cs.Observe(mustEvent(t, `{"event_type":"client_stats","src_ip":"10.9.9.9","program":"nginx"}`))

	require.Equal(t, 1, cs.Len())
	assert.Equal(t, "nginx", cs.Snapshot()["10.9.9.9"].Program)
}

func TestClientStatsMissingTimestampUsesClock(t *testing.T) {
	cs, _ := newTestClientStats(t)

	cs.Observe(mustEvent(t, `{"event_type":"client_stats","src_ip":"10.9.9.9"}`))

	assert.Equal(t, "2026-03-01T12:00:00Z", cs.Snapshot()["10.9.9.9"].LastSeen)
}

func TestClientStatsDropsWithoutSrcIP(t *testing.T) {
	cs, _ := newTestClientStats(t)

	cs.Observe(mustEvent(t, `{"event_type":"client_stats","program":"sshd"}`))

	assert.Equal(t, 0, cs.Len())
}

func TestClientStatsSnapshotIsACopy(t *testing.T) {
	cs, _ := newTestClientStats(t)

	cs.Observe(mustEvent(t, `{"event_type":"client_stats","src_ip":"10.9.9.9"}`))

	snap := cs.Snapshot()
	delete(snap, "10.9.9.9")
	assert.Equal(t, 1, cs.Len())
}
