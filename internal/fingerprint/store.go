// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fingerprint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// scanBatch mirrors the single-pass expectation of the key scans; the
// cursor is still looped for correctness.
const scanBatch = 1000000

// StoreConfig carries the knobs the correlation store needs.
type StoreConfig struct {
	Prefix string
	IPTTL  time.Duration
	// DHCPTTL bounds dhcp records, which outlive leases on purpose.
	DHCPTTL time.Duration
	// ReportHost is the bridge's own reporting hostname.
	ReportHost string
	// Interface is recorded in fingerprint events when the event
	// itself carries no in_iface.
	Interface string
}

// Store reads and writes correlation records in a Redis-compatible KV
// store. Operations never fail the pipeline; callers treat errors as
// advisory.
type Store struct {
	rdb    redis.UniversalClient
	cfg    StoreConfig
	ctr    *counters.Counters
	logger *logging.Logger
}

// NewStore wraps an established client.
func NewStore(rdb redis.UniversalClient, cfg StoreConfig, ctr *counters.Counters, logger *logging.Logger) *Store {
	return &Store{
		rdb:    rdb,
		cfg:    cfg,
		ctr:    ctr,
		logger: logger.WithComponent("fingerprint"),
	}
}

func (s *Store) dhcpKey(ip string) string {
	return s.cfg.Prefix + "|dhcp|" + ip
}

func (s *Store) ipKey(ip string) string {
	return s.cfg.Prefix + "|ip|" + ip
}

func (s *Store) eventKey(ip, sigID string) string {
	return s.cfg.Prefix + "|event|" + ip + "|" + sigID
}

func (s *Store) healthKey(sensor string) string {
	return s.cfg.Prefix + "|health|" + sensor
}

// WriteDHCP stores a raw dhcp event keyed by the address it assigns.
// Relay traffic reports assigned_ip 0.0.0.0; the destination address
// identifies the client then, unless it is the broadcast address.
func (s *Store) WriteDHCP(ctx context.Context, e *event.Event) error {
	ip := e.Str("dhcp", "assigned_ip")
	if ip == "0.0.0.0" {
		if dest := e.Str("dest_ip"); dest != "" && dest != "255.255.255.255" {
			ip = dest
		}
	}
	if ip == "" || ip == "0.0.0.0" {
		s.logger.Debug("dhcp event carries no usable address, skipping")
		return nil
	}

	raw, err := e.Render()
	if err != nil {
		return err
	}

	if err := s.rdb.Set(ctx, s.dhcpKey(ip), raw, s.cfg.DHCPTTL).Err(); err != nil {
		s.ctr.RedisError()
		s.logger.Warn("failed to store dhcp record", "ip", ip, "error", err)
		return errors.Wrap(err, errors.KindStorage, "store dhcp record")
	}

	s.ctr.DHCPWrite()
	return nil
}

// WriteFingerprint stores the presence and event records for a
// fingerprint rule alert. The alert is consumed by the caller and
// never reaches a sink.
func (s *Store) WriteFingerprint(ctx context.Context, e *event.Event, md Metadata) error {
	srcIP := e.Str("src_ip")
	if srcIP == "" {
		s.logger.Debug("fingerprint alert without src_ip, skipping")
		return nil
	}

	presence, err := json.Marshal(map[string]any{
		"timestamp": e.Str("timestamp"),
		"ip":        srcIP,
	})
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "encode presence record")
	}

	if err := s.rdb.Set(ctx, s.ipKey(srcIP), presence, s.cfg.IPTTL).Err(); err != nil {
		s.ctr.RedisError()
		s.logger.Warn("failed to store ip presence", "ip", srcIP, "error", err)
		return errors.Wrap(err, errors.KindStorage, "store ip presence")
	}

	record, err := json.Marshal(s.fingerprintRecord(e, md))
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "encode fingerprint record")
	}

	ttl := time.Duration(md.Expire) * time.Second
	if ttl <= 0 {
		ttl = s.cfg.IPTTL
	}

	sigID := e.Str("alert", "signature_id")
	if err := s.rdb.Set(ctx, s.eventKey(srcIP, sigID), record, ttl).Err(); err != nil {
		s.ctr.RedisError()
		s.logger.Warn("failed to store fingerprint event", "ip", srcIP, "signature_id", sigID, "error", err)
		return errors.Wrap(err, errors.KindStorage, "store fingerprint event")
	}

	s.ctr.FingerprintWrite()
	return nil
}

// fingerprintRecord builds the stored event. Empty optional fields are
// omitted so lookups splice compact objects.
func (s *Store) fingerprintRecord(e *event.Event, md Metadata) map[string]any {
	iface := e.Str("in_iface")
	if iface == "" {
		iface = s.cfg.Interface
	}

	rec := map[string]any{
		"event_type": "fingerprint",
		"timestamp":  e.Str("timestamp"),
		"flow_id":    e.Int64("flow_id"),
		"src_ip":     e.Str("src_ip"),
		"src_host":   e.Str("src_dns"),
		"dest_host":  e.Str("dest_dns"),
		"host":       s.cfg.ReportHost,
		"in_iface":   iface,
		"src_port":   e.Int64("src_port"),
		"dest_ip":    e.Str("dest_ip"),
		"dest_port":  e.Int64("dest_port"),
		"proto":      e.Str("proto"),
	}
	if v := e.Str("app_proto"); v != "" {
		rec["app_proto"] = v
	}
	if v := e.Str("program"); v != "" {
		rec["program"] = v
	}

	fp := map[string]any{
		"os":            md.OS,
		"source":        md.Source,
		"client_server": md.Type,
		"signature_id":  e.Int64("alert", "signature_id"),
		"signature":     e.Str("alert", "signature"),
		"rev":           e.Int64("alert", "rev"),
	}
	if v := e.Str("payload"); v != "" {
		fp["payload"] = v
	}
	if md.Expire != 0 {
		fp["expire"] = md.Expire
	}
	rec["fingerprint"] = fp

	if e.Str("app_proto") == "http" {
		httpNest := map[string]any{}
		if v := e.Str("http", "http_user_agent"); v != "" {
			httpNest["http_user_agent"] = v
		}
		if v := e.Str("http", "xff"); v != "" {
			httpNest["xff"] = v
		}
		if len(httpNest) > 0 {
			rec["http"] = httpNest
		}
	}

	return rec
}

// GetDHCP fetches the dhcp record for an address. A miss is not an
// error.
func (s *Store) GetDHCP(ctx context.Context, ip string) (json.RawMessage, bool) {
	val, err := s.rdb.Get(ctx, s.dhcpKey(ip)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.ctr.RedisError()
			s.logger.Warn("dhcp lookup failed", "ip", ip, "error", err)
		}
		return nil, false
	}
	if !json.Valid(val) {
		s.logger.Warn("dhcp record is not valid JSON, ignoring", "ip", ip)
		return nil, false
	}
	return json.RawMessage(val), true
}

// ScanEventRecords returns every stored fingerprint event for an
// address in SCAN return order.
func (s *Store) ScanEventRecords(ctx context.Context, ip string) []json.RawMessage {
	var out []json.RawMessage

	match := s.eventKey(ip, "*")
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			s.ctr.RedisError()
			s.logger.Warn("fingerprint scan failed", "ip", ip, "error", err)
			return out
		}

		for _, key := range keys {
			val, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil {
				if err != redis.Nil {
					s.ctr.RedisError()
					s.logger.Warn("fingerprint fetch failed", "key", key, "error", err)
				}
				continue
			}
			out = append(out, json.RawMessage(val))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out
}

// TouchHealth records the last health check per sensor.
func (s *Store) TouchHealth(ctx context.Context, sensor string, ts time.Time) error {
	err := s.rdb.Set(ctx, s.healthKey(sensor), ts.UTC().Format(time.RFC3339), 0).Err()
	if err != nil {
		s.ctr.RedisError()
		return errors.Wrap(err, errors.KindStorage, "store health timestamp")
	}
	return nil
}
