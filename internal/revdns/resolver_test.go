// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package revdns

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/logging"
)

func newTestResolver(t *testing.T) (*Resolver, *clock.MockClock, *int) {
	t.Helper()

	r := New(Config{Server: "127.0.0.1:5353", CacheTTL: 300 * time.Second},
		logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard}))

	mc := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r.clk = mc

	queries := 0
	r.exchange = func(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, error) {
		queries++

		resp := new(dns.Msg)
		resp.SetReply(m)
		if m.Question[0].Name == "5.1.1.10.in-addr.arpa." {
			ptr, err := dns.NewRR(m.Question[0].Name + " 300 IN PTR workstation.lan.")
			require.NoError(t, err)
			resp.Answer = append(resp.Answer, ptr)
		}
		return resp, nil
	}

	return r, mc, &queries
}

func TestLookup(t *testing.T) {
	r, _, queries := newTestResolver(t)

	name := r.Lookup(context.Background(), "10.1.1.5")
	assert.Equal(t, "workstation.lan", name, "trailing dot stripped")
	assert.Equal(t, 1, *queries)
}

func TestLookupCachesHits(t *testing.T) {
	r, _, queries := newTestResolver(t)
	ctx := context.Background()

	r.Lookup(ctx, "10.1.1.5")
	r.Lookup(ctx, "10.1.1.5")
	r.Lookup(ctx, "10.1.1.5")

	assert.Equal(t, 1, *queries, "repeat lookups served from cache")
}

func TestLookupCachesMisses(t *testing.T) {
	r, _, queries := newTestResolver(t)
	ctx := context.Background()

	assert.Equal(t, "", r.Lookup(ctx, "10.9.9.9"))
	assert.Equal(t, "", r.Lookup(ctx, "10.9.9.9"))
	assert.Equal(t, 1, *queries, "negative answers cached too")
}

func TestLookupExpiry(t *testing.T) {
	r, mc, queries := newTestResolver(t)
	ctx := context.Background()

	r.Lookup(ctx, "10.1.1.5")
	mc.Advance(301 * time.Second)
	r.Lookup(ctx, "10.1.1.5")

	assert.Equal(t, 2, *queries, "expired entry queried again")
}

func TestLookupBadAddress(t *testing.T) {
	r, _, queries := newTestResolver(t)

	assert.Equal(t, "", r.Lookup(context.Background(), "not-an-ip"))
	assert.Equal(t, 0, *queries, "unparseable addresses never reach the wire")
}

func TestLookupIPv6(t *testing.T) {
	r, _, _ := newTestResolver(t)

	answered := ""
	r.exchange = func(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, error) {
		answered = m.Question[0].Name
		resp := new(dns.Msg)
		resp.SetReply(m)
		return resp, nil
	}

	r.Lookup(context.Background(), "2001:db8::1")
	assert.Contains(t, answered, "ip6.arpa.")
}

func TestSweepFlushesExpired(t *testing.T) {
	r, mc, _ := newTestResolver(t)
	ctx := context.Background()

	r.Lookup(ctx, "10.1.1.5")
	r.Lookup(ctx, "10.9.9.9")
	require.Equal(t, 2, r.CacheLen())

	mc.Advance(301 * time.Second)
	r.mu.Lock()
	r.sweepLocked()
	r.mu.Unlock()

	assert.Equal(t, 0, r.CacheLen())
}
