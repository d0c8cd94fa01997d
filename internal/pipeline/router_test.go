// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/decode"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/fingerprint"
	"github.com/VVelox/meer/internal/health"
	"github.com/VVelox/meer/internal/iprange"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/ndp"
	"github.com/VVelox/meer/internal/sinks"
)

// sinkCapture records deliveries in place of a real sink.
type sinkCapture struct {
	name string
	recs []*sinks.Record
	fail bool
}

func (s *sinkCapture) Name() string { return s.name }

func (s *sinkCapture) Deliver(_ context.Context, rec *sinks.Record) error {
	if s.fail {
		return errors.New(errors.KindNetwork, "sink unavailable")
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *sinkCapture) Close() error { return nil }

func (s *sinkCapture) last(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, s.recs)
	var m map[string]any
	require.NoError(t, json.Unmarshal(s.recs[len(s.recs)-1].Data, &m))
	return m
}

// bridge is a fully wired pipeline over capture sinks and miniredis.
type bridge struct {
	p   *Pipeline
	r   *Router
	ctr *counters.Counters
	mr  *miniredis.Miniredis

	sql, kv, search, pipeSink, fileSink, external *sinkCapture
}

func (b *bridge) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		b.p.Process(context.Background(), []byte(line))
	}
}

func newBridge(t *testing.T, mutate ...func(*RouterConfig)) *bridge {
	t.Helper()

	logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	ctr := counters.New()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := fingerprint.NewStore(rdb, fingerprint.StoreConfig{
		Prefix:     "meer",
		IPTTL:      24 * time.Hour,
		DHCPTTL:    120 * time.Hour,
		ReportHost: "bridge-01",
		Interface:  "eth0",
	}, ctr, logger)

	rewriter := decode.NewRewriter(decode.RewriterConfig{
		Host: "bridge-01",
		Classifications: map[string]config.Classification{
			"trojan-activity": {Shorthand: "trojan-activity", Description: "A Network Trojan was detected", Priority: 1},
		},
		FixupClassification: true,
	}, logger)

	b := &bridge{
		ctr:      ctr,
		mr:       mr,
		sql:      &sinkCapture{name: "sql"},
		kv:       &sinkCapture{name: "redis"},
		search:   &sinkCapture{name: "elasticsearch"},
		pipeSink: &sinkCapture{name: "pipe"},
		fileSink: &sinkCapture{name: "file"},
		external: &sinkCapture{name: "external"},
	}

	cfg := RouterConfig{
		Rewriter: rewriter,
		Store:    store,
		Interest: iprange.MustParseSet([]string{"10.0.0.0/8", "192.0.2.0/24"}),
		MaxBytes: 1 << 20,

		SQL:      SinkPolicy{Sink: b.sql, Alerts: true},
		KV:       SinkPolicy{Sink: b.kv, Alerts: true, Types: []string{"flow", "dns", "dhcp", "stats"}},
		Search:   SinkPolicy{Sink: b.search, Alerts: true, Types: []string{"flow", "dns"}},
		Pipe:     SinkPolicy{Sink: b.pipeSink, Alerts: true, Types: []string{"flow"}},
		File:     SinkPolicy{Sink: b.fileSink, Alerts: true},
		External: SinkPolicy{Sink: b.external},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	b.r = NewRouter(cfg, ctr, logger)

	collector := ndp.New(ndp.Config{
		Ignore:      iprange.MustParseSet([]string{"10.0.0.0/8", "192.168.0.0/16"}),
		Routing:     []string{"flow", "fileinfo", "tls", "dns", "ssh", "http", "smb", "ftp"},
		SMBCommands: []string{"SMB2_COMMAND_CREATE", "SMB2_COMMAND_WRITE"},
		FTPCommands: []string{"RETR", "STOR"},
	}, b.r, ctr, logger)
	b.r.AttachCollector(collector)

	b.p = New(b.r, ctr, logger)
	return b
}

func TestMalformedLineIsCountedAndDropped(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{not json`)

	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(1), snap.InvalidJSON)
	assert.Equal(t, uint64(0), snap.Events)
	assert.Empty(t, b.sql.recs)
	assert.Empty(t, b.kv.recs)
	assert.Empty(t, b.search.recs)
	assert.Empty(t, b.pipeSink.recs)
	assert.Empty(t, b.fileSink.recs)
	assert.Empty(t, b.external.recs)
}

func TestPlainAlertFansOutRewritten(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{"event_type":"alert","timestamp":"2026-02-01T10:00:00.123456+0000",`+
		`"src_ip":"10.1.1.1","dest_ip":"8.8.8.8","proto":"TCP",`+
		`"alert":{"signature_id":2001,"rev":3,"signature":"ET TROJAN CnC beacon [Classification: trojan-activity]"}}`)

	for _, s := range []*sinkCapture{b.sql, b.kv, b.search, b.pipeSink, b.fileSink, b.external} {
		require.Len(t, s.recs, 1, s.name)
		assert.Equal(t, "alert", s.recs[0].Type, s.name)
	}

	m := b.pipeSink.last(t)
	alert := m["alert"].(map[string]any)
	assert.Equal(t, "A Network Trojan was detected", alert["category"])
	assert.Equal(t, float64(1), alert["severity"])
	assert.Equal(t, "bridge-01", m["host"])
	assert.Equal(t, "2026-02-01T10:00:00.123456+00:00", m["@timestamp"])

	assert.Empty(t, b.mr.Keys(), "plain alerts write no correlation keys")
}

func TestFingerprintAlertIsConsumed(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{"event_type":"alert","timestamp":"2026-02-01T10:00:00.123456+0000",`+
		`"src_ip":"10.1.1.1","src_port":1044,"dest_ip":"10.0.0.2","dest_port":445,"proto":"TCP","flow_id":101,`+
		`"alert":{"signature_id":3000001,"rev":1,"signature":"FINGERPRINT windows client",`+
		`"metadata":["fingerprint_os \"Windows 10\"","fingerprint_type client","fingerprint_expire 3600"]}}`)

	require.True(t, b.mr.Exists("meer|ip|10.1.1.1"))
	require.True(t, b.mr.Exists("meer|event|10.1.1.1|3000001"))
	assert.Equal(t, 24*time.Hour, b.mr.TTL("meer|ip|10.1.1.1"))
	assert.Equal(t, 3600*time.Second, b.mr.TTL("meer|event|10.1.1.1|3000001"))

	stored, err := b.mr.Get("meer|event|10.1.1.1|3000001")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(stored), &rec))
	fp := rec["fingerprint"].(map[string]any)
	assert.Equal(t, "Windows 10", fp["os"])

	assert.Empty(t, b.sql.recs, "consumed alerts skip sql")
	assert.Empty(t, b.kv.recs, "consumed alerts skip the kv alert stream")
	assert.Empty(t, b.pipeSink.recs)
	assert.Empty(t, b.fileSink.recs)
	assert.Len(t, b.search.recs, 1, "search still sees consumed alerts")
	assert.Len(t, b.external.recs, 1, "external still sees consumed alerts")

	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(1), snap.FingerprintSeen)
	assert.Equal(t, uint64(0), snap.NDPSkipped)
}

func TestDNSQueryDedupTwice(t *testing.T) {
	b := newBridge(t)

	query := `{"event_type":"dns","src_ip":"203.0.113.5","dest_ip":"10.1.1.1","flow_id":7,` +
		`"timestamp":"2026-02-01T10:00:00.000000+0000","dns":{"type":"query","rrname":"example.com","rrtype":"A"}}`
	b.feed(t, query, query)

	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(1), snap.NDPEmitted)
	assert.Equal(t, uint64(1), snap.NDPSkipped)

	var ndpRecs []*sinks.Record
	for _, rec := range b.search.recs {
		if rec.DocID != "" {
			ndpRecs = append(ndpRecs, rec)
		}
	}
	require.Len(t, ndpRecs, 1)
	assert.Equal(t, "ndp", ndpRecs[0].Type)
	assert.Len(t, ndpRecs[0].DocID, 32)
}

func TestTLSWithoutHashesEmitsNothing(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{"event_type":"tls","src_ip":"203.0.113.5","dest_ip":"10.1.1.1",`+
		`"tls":{"subject":"CN=example.com","version":"TLS 1.3"}}`)

	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(0), snap.NDPEmitted)
	assert.Equal(t, uint64(0), snap.NDPSkipped)
	for _, rec := range b.search.recs {
		assert.Empty(t, rec.DocID)
	}
}

func TestDHCPCorrelationEndToEnd(t *testing.T) {
	b := newBridge(t)

	dhcp := `{"event_type":"dhcp","timestamp":"2026-02-01T09:59:00.000000+0000",` +
		`"src_ip":"192.0.2.1","dest_ip":"192.0.2.5",` +
		`"dhcp":{"type":"reply","assigned_ip":"192.0.2.5","client_mac":"00:11:22:33:44:55"}}`
	b.feed(t, dhcp)

	require.Equal(t, uint64(1), b.ctr.Snapshot().DHCPWrites)
	require.Len(t, b.kv.recs, 1, "dhcp also routes generically")

	b.feed(t, `{"event_type":"alert","timestamp":"2026-02-01T10:00:00.000000+0000",`+
		`"src_ip":"192.0.2.5","dest_ip":"8.8.8.8","proto":"TCP",`+
		`"alert":{"signature_id":2001,"rev":1,"signature":"ET POLICY something"}}`)

	m := b.fileSink.last(t)
	spliced, ok := m["fingerprint_dhcp_src"].(map[string]any)
	require.True(t, ok, "alert carries the stored dhcp body")
	dhcpObj := spliced["dhcp"].(map[string]any)
	assert.Equal(t, "192.0.2.5", dhcpObj["assigned_ip"])

	assert.Equal(t, uint64(1), b.ctr.Snapshot().Enriched)
}

func TestSameAlertTwiceRendersIdentically(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{"event_type":"dhcp","timestamp":"2026-02-01T09:59:00.000000+0000",`+
		`"src_ip":"192.0.2.1","dest_ip":"192.0.2.5",`+
		`"dhcp":{"type":"reply","assigned_ip":"192.0.2.5","client_mac":"00:11:22:33:44:55"}}`)

	alert := `{"event_type":"alert","timestamp":"2026-02-01T10:00:00.000000+0000",` +
		`"src_ip":"192.0.2.5","dest_ip":"8.8.8.8","proto":"TCP",` +
		`"alert":{"signature_id":2001,"rev":1,"signature":"ET POLICY something"}}`
	b.feed(t, alert, alert)

	require.Len(t, b.fileSink.recs, 2)
	assert.Equal(t, string(b.fileSink.recs[0].Data), string(b.fileSink.recs[1].Data),
		"the store did not change between runs, so neither may the output")
}

func TestHealthAlertIsConsumedEntirely(t *testing.T) {
	b := newBridge(t, func(cfg *RouterConfig) {
		logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
		clk := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		cfg.Health = health.New([]int{5000010}, cfg.Store, counters.New(), clk, logger)
	})

	b.feed(t, `{"event_type":"alert","src_ip":"10.1.1.1","dest_ip":"10.2.2.2",`+
		`"alert":{"signature_id":5000010,"signature":"MEER health check"}}`)

	assert.Empty(t, b.sql.recs)
	assert.Empty(t, b.search.recs)
	assert.Empty(t, b.external.recs)

	got, err := b.mr.Get("meer|health|bridge-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", got)
}

func TestClientStatsDroppedWhenDisabled(t *testing.T) {
	b := newBridge(t, func(cfg *RouterConfig) {
		cfg.KV.Types = append(cfg.KV.Types, "client_stats")
	})

	b.feed(t, `{"event_type":"client_stats","src_ip":"10.9.9.9","program":"sshd"}`)

	assert.Empty(t, b.kv.recs, "disabled client_stats events are dropped")
}

func TestClientStatsTrackedWhenEnabled(t *testing.T) {
	var clients *decode.ClientStats
	b := newBridge(t, func(cfg *RouterConfig) {
		logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
		clients = decode.NewClientStats(&clock.RealClock{}, logger)
		cfg.Clients = clients
		cfg.KV.Types = append(cfg.KV.Types, "client_stats")
	})

	b.feed(t, `{"event_type":"client_stats","src_ip":"10.9.9.9","program":"sshd"}`)

	assert.Equal(t, 1, clients.Len())
	assert.Len(t, b.kv.recs, 1, "enabled client_stats events route generically")
}

func TestUnknownEventTypeRoutesGenericallyOnly(t *testing.T) {
	b := newBridge(t, func(cfg *RouterConfig) {
		cfg.File.Types = []string{"netflow"}
	})

	b.feed(t, `{"event_type":"netflow","src_ip":"10.1.1.1"}`)

	assert.Len(t, b.fileSink.recs, 1)
	assert.Empty(t, b.sql.recs)
	assert.Empty(t, b.external.recs)
	assert.Equal(t, uint64(1), b.ctr.Snapshot().ByType["netflow"])
}

func TestAlertsNeverRouteGenerically(t *testing.T) {
	b := newBridge(t, func(cfg *RouterConfig) {
		cfg.KV.Alerts = false
		cfg.KV.Types = []string{"alert"}
	})

	b.feed(t, `{"event_type":"alert","src_ip":"10.1.1.1","alert":{"signature_id":1}}`)

	assert.Empty(t, b.kv.recs, "the alert toggle is the only path to the kv sink")
}

func TestSinkFailureDoesNotShortCircuit(t *testing.T) {
	b := newBridge(t)
	b.kv.fail = true

	b.feed(t, `{"event_type":"alert","src_ip":"10.1.1.1","alert":{"signature_id":1}}`)

	assert.Len(t, b.sql.recs, 1)
	assert.Len(t, b.fileSink.recs, 1)
	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(1), snap.SinkErrors["redis"])
	assert.Equal(t, uint64(0), snap.SinkErrors["sql"])
}

func TestRejectedNDPHandoffRetriesNextEvent(t *testing.T) {
	b := newBridge(t, func(cfg *RouterConfig) {
		cfg.Search.Types = nil
	})
	b.search.fail = true

	query := `{"event_type":"dns","src_ip":"203.0.113.5","dest_ip":"10.1.1.1",` +
		`"dns":{"type":"query","rrname":"example.com"}}`
	b.feed(t, query)

	snap := b.ctr.Snapshot()
	assert.Equal(t, uint64(0), snap.NDPEmitted)
	assert.Equal(t, uint64(1), snap.SinkErrors["elasticsearch"])

	// Once the sink recovers the same observation goes through
	// instead of being treated as a duplicate.
	b.search.fail = false
	b.feed(t, query)

	snap = b.ctr.Snapshot()
	assert.Equal(t, uint64(1), snap.NDPEmitted)
	assert.Equal(t, uint64(0), snap.NDPSkipped)
}

func TestStatsEventsRouteGenerically(t *testing.T) {
	b := newBridge(t)

	b.feed(t, `{"event_type":"stats","host":"sensor-7","stats":{"uptime":100}}`)

	require.Len(t, b.kv.recs, 1)
	assert.Equal(t, "stats", b.kv.recs[0].Type)
}

func TestTapSeesRewrittenAlerts(t *testing.T) {
	hub := NewHub()
	b := newBridge(t, func(cfg *RouterConfig) {
		cfg.Hub = hub
	})
	ch := hub.Subscribe(4)

	b.feed(t, `{"event_type":"alert","timestamp":"2026-02-01T10:00:00+0000",`+
		`"src_ip":"10.1.1.1","alert":{"signature_id":1}}`)

	select {
	case line := <-ch:
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		assert.Equal(t, "bridge-01", m["host"])
	default:
		t.Fatal("tap subscriber received nothing")
	}
}
