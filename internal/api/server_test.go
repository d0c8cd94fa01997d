// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/decode"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/pipeline"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func newTestServer(t *testing.T, cfg Config, src Sources) *httptest.Server {
	t.Helper()
	if src.Counters == nil {
		src.Counters = counters.New()
	}
	ts := httptest.NewServer(NewServer(cfg, src, testLogger()).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

func TestStatusReportsPipelineState(t *testing.T) {
	ctr := counters.New()
	ctr.Event("alert")
	ctr.Event("alert")
	ctr.Event("dns")
	ctr.SinkDelivered("sql")

	clients := decode.NewClientStats(clock.NewMockClock(time.Unix(1756000000, 0)), testLogger())
	hub := pipeline.NewHub()
	hub.Publish("alert", []byte("{}"))

	ts := newTestServer(t, Config{Tap: true}, Sources{
		Counters: ctr,
		Clients:  clients,
		Hub:      hub,
	})

	var got statusPayload
	resp := getJSON(t, ts.URL+"/status", &got)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "meer", got.Name)
	assert.NotEmpty(t, got.Version)
	assert.Equal(t, uint64(3), got.Counters.Events)
	assert.Equal(t, uint64(2), got.Counters.ByType["alert"])
	assert.Equal(t, uint64(1), got.Counters.SinkDelivered["sql"])
	require.NotNil(t, got.Tap)
	assert.Equal(t, uint64(1), got.Tap.Published)
}

func TestStatusOmitsAbsentSections(t *testing.T) {
	ts := newTestServer(t, Config{}, Sources{})

	var got map[string]any
	getJSON(t, ts.URL+"/status", &got)

	assert.Contains(t, got, "counters")
	assert.NotContains(t, got, "health")
	assert.NotContains(t, got, "clients")
	assert.NotContains(t, got, "tap")
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	ctr := counters.New()
	ctr.Event("alert")
	ts := newTestServer(t, Config{}, Sources{Counters: ctr})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "meer_events_total")
}

func TestStatusRejectsOtherMethods(t *testing.T) {
	ts := newTestServer(t, Config{}, Sources{})

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	off := newTestServer(t, Config{}, Sources{})
	resp, err := http.Get(off.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	on := newTestServer(t, Config{Pprof: true}, Sources{})
	resp, err = http.Get(on.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
