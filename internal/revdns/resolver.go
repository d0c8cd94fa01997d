// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package revdns resolves addresses to PTR names with a TTL cache.
// Misses are cached too, so a sensor hammering the bridge with events
// from unresolvable addresses costs one upstream query per TTL window.
package revdns

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/logging"
)

// maxCacheEntries bounds the cache; a sweep past this size drops
// expired entries, and the whole cache when the sweep isn't enough.
const maxCacheEntries = 65536

// Config configures the resolver.
type Config struct {
	// Server is the upstream resolver as host:port. Empty means the
	// first nameserver from /etc/resolv.conf.
	Server string
	// CacheTTL is how long answers, including negative ones, are kept.
	CacheTTL time.Duration
}

type cachedName struct {
	name      string
	expiresAt time.Time
}

// Resolver answers reverse lookups for event addresses.
type Resolver struct {
	server   string
	ttl      time.Duration
	exchange func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, error)
	clk      clock.Clock
	logger   *logging.Logger

	mu    sync.RWMutex
	cache map[string]cachedName
}

// New builds a resolver against cfg.Server.
func New(cfg Config, logger *logging.Logger) *Resolver {
	server := cfg.Server
	if server == "" {
		server = systemResolver()
	}
	if !strings.Contains(server, ":") {
		server += ":53"
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := new(dns.Client)
	c.Timeout = 2 * time.Second

	return &Resolver{
		server: server,
		ttl:    ttl,
		exchange: func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, error) {
			resp, _, err := c.ExchangeContext(ctx, m, addr)
			return resp, err
		},
		clk:    &clock.RealClock{},
		logger: logger.WithComponent("revdns"),
		cache:  make(map[string]cachedName),
	}
}

func systemResolver() string {
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cc.Servers) == 0 {
		return "127.0.0.1:53"
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

// Lookup returns the PTR name for ip, or "" when it has none or the
// lookup fails. The answer is cached either way.
func (r *Resolver) Lookup(ctx context.Context, ip string) string {
	r.mu.RLock()
	entry, ok := r.cache[ip]
	r.mu.RUnlock()
	if ok && r.clk.Now().Before(entry.expiresAt) {
		return entry.name
	}

	name := r.resolve(ctx, ip)

	r.mu.Lock()
	if len(r.cache) >= maxCacheEntries {
		r.sweepLocked()
	}
	r.cache[ip] = cachedName{name: name, expiresAt: r.clk.Now().Add(r.ttl)}
	r.mu.Unlock()

	return name
}

func (r *Resolver) resolve(ctx context.Context, ip string) string {
	zone, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	m := new(dns.Msg)
	m.SetQuestion(zone, dns.TypePTR)

	resp, err := r.exchange(ctx, m, r.server)
	if err != nil {
		r.logger.Debug("ptr lookup failed", "ip", ip, "error", err)
		return ""
	}

	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}

// CacheLen reports the current cache size.
func (r *Resolver) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Resolver) sweepLocked() {
	now := r.clk.Now()
	for ip, entry := range r.cache {
		if !now.Before(entry.expiresAt) {
			delete(r.cache, ip)
		}
	}
	if len(r.cache) >= maxCacheEntries {
		r.logger.Debug("resolver cache full after sweep, flushing", "entries", len(r.cache))
		r.cache = make(map[string]cachedName)
	}
}
