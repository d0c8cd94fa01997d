// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package stats

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	return New("bridge-01", prometheus.NewRegistry(), logger)
}

func mustEvent(t *testing.T, line string) *event.Event {
	t.Helper()
	ev, err := event.Parse([]byte(line))
	require.NoError(t, err)
	return ev
}

const statsLine = `{"event_type":"stats","timestamp":"2026-02-01T10:00:00+00:00","host":"sensor-7",` +
	`"stats":{"uptime":86400,` +
	`"capture":{"kernel_packets":123456,"kernel_drops":12},` +
	`"decoder":{"pkts":123400,"ipv4":120000,"invalid":3},` +
	`"detect":{"engines":[{"id":0}]}}}`

func TestObserveFlattensNumericLeaves(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe(mustEvent(t, statsLine))

	assert.Equal(t, float64(86400),
		testutil.ToFloat64(tr.gauge.WithLabelValues("sensor-7", "uptime")))
	assert.Equal(t, float64(12),
		testutil.ToFloat64(tr.gauge.WithLabelValues("sensor-7", "capture_kernel_drops")))
	assert.Equal(t, float64(120000),
		testutil.ToFloat64(tr.gauge.WithLabelValues("sensor-7", "decoder_ipv4")))
}

func TestObserveLatestValueWins(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe(mustEvent(t, `{"event_type":"stats","host":"s","stats":{"uptime":10}}`))
	tr.Observe(mustEvent(t, `{"event_type":"stats","host":"s","stats":{"uptime":20}}`))

	assert.Equal(t, float64(20),
		testutil.ToFloat64(tr.gauge.WithLabelValues("s", "uptime")))
}

func TestObserveFallsBackToConfiguredHost(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe(mustEvent(t, `{"event_type":"stats","stats":{"uptime":5}}`))

	assert.Equal(t, float64(5),
		testutil.ToFloat64(tr.gauge.WithLabelValues("bridge-01", "uptime")))
}

func TestObserveWithoutStatsObjectIsANoop(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe(mustEvent(t, `{"event_type":"stats","host":"s"}`))

	assert.Equal(t, 0, testutil.CollectAndCount(tr.gauge))
}

func TestObserveSkipsNonNumericLeaves(t *testing.T) {
	tr := newTestTracker(t)

	tr.Observe(mustEvent(t,
		`{"event_type":"stats","host":"s","stats":{"uptime":5,"version":"7.0.2","flags":[1,2]}}`))

	assert.Equal(t, 1, testutil.CollectAndCount(tr.gauge))
}
