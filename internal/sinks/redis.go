// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

// alertKey is the fixed stream alerts are delivered to, regardless of
// the configured generic key.
const alertKey = "alert"

// KVConfig selects how and where generic events land.
type KVConfig struct {
	// Mode is one of lpush, rpush, publish, set.
	Mode string

	// Key is the list key or channel for generic events.
	Key string
}

// KV delivers events to a Redis style key/value store. The client is
// shared with the correlation store and closed by its owner.
type KV struct {
	rdb    redis.UniversalClient
	mode   string
	key    string
	logger *logging.Logger
}

// NewKV wraps rdb as a sink.
func NewKV(rdb redis.UniversalClient, cfg KVConfig, logger *logging.Logger) *KV {
	mode := cfg.Mode
	switch mode {
	case "lpush", "rpush", "publish", "set":
	default:
		mode = "lpush"
	}
	key := cfg.Key
	if key == "" {
		key = "suricata"
	}
	return &KV{rdb: rdb, mode: mode, key: key, logger: logger.WithComponent("redis")}
}

// Name implements Sink.
func (s *KV) Name() string { return "redis" }

// Deliver pushes one event. Alerts go to the alert stream, everything
// else to the configured key in the configured mode.
func (s *KV) Deliver(ctx context.Context, rec *Record) error {
	key := s.key
	if rec.Type == "alert" {
		key = alertKey
	}

	var err error
	switch s.mode {
	case "rpush":
		err = s.rdb.RPush(ctx, key, rec.Data).Err()
	case "publish":
		err = s.rdb.Publish(ctx, key, rec.Data).Err()
	case "set":
		err = s.rdb.Set(ctx, key, rec.Data, 0).Err()
	default:
		err = s.rdb.LPush(ctx, key, rec.Data).Err()
	}
	if err != nil {
		return errors.Wrapf(err, errors.KindNetwork, "redis %s %s", s.mode, key)
	}
	return nil
}

// Close implements Sink. The shared client outlives the sink.
func (s *KV) Close() error { return nil }
