// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// The alert database keeps the Snort schema shape console tooling
// expects: one sensor row per (hostname, interface), events numbered
// by a per-sensor cid, protocol headers and payload in side tables,
// and the full EVE record in extra.
const sqlSchema = `
CREATE TABLE IF NOT EXISTS sensor (
	sid       INTEGER PRIMARY KEY AUTOINCREMENT,
	hostname  TEXT NOT NULL,
	interface TEXT NOT NULL DEFAULT '',
	last_cid  INTEGER NOT NULL DEFAULT 0,
	UNIQUE (hostname, interface)
);
CREATE TABLE IF NOT EXISTS event (
	sid          INTEGER NOT NULL,
	cid          INTEGER NOT NULL,
	signature_id INTEGER NOT NULL DEFAULT 0,
	rev          INTEGER NOT NULL DEFAULT 0,
	signature    TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	severity     INTEGER NOT NULL DEFAULT 0,
	timestamp    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS iphdr (
	sid     INTEGER NOT NULL,
	cid     INTEGER NOT NULL,
	src_ip  TEXT NOT NULL DEFAULT '',
	dest_ip TEXT NOT NULL DEFAULT '',
	proto   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS tcphdr (
	sid       INTEGER NOT NULL,
	cid       INTEGER NOT NULL,
	src_port  INTEGER NOT NULL DEFAULT 0,
	dest_port INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS udphdr (
	sid       INTEGER NOT NULL,
	cid       INTEGER NOT NULL,
	src_port  INTEGER NOT NULL DEFAULT 0,
	dest_port INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS icmphdr (
	sid       INTEGER NOT NULL,
	cid       INTEGER NOT NULL,
	icmp_type INTEGER NOT NULL DEFAULT 0,
	icmp_code INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS payload (
	sid  INTEGER NOT NULL,
	cid  INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (sid, cid)
);
CREATE TABLE IF NOT EXISTS extra (
	sid  INTEGER NOT NULL,
	cid  INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (sid, cid)
);
`

// SQLConfig identifies the database and the sensor row alerts are
// filed under.
type SQLConfig struct {
	Path       string
	SensorName string
	Interface  string
}

// SQL writes alerts into a SQLite database. One alert is one cid
// allocation plus its row set, all in a single transaction.
type SQL struct {
	db     *sql.DB
	logger *logging.Logger

	mu      sync.Mutex
	sid     int64
	nextCID int64
}

// NewSQL opens (creating if needed) the database, applies the schema,
// registers the sensor row, and resumes cid numbering from last_cid.
func NewSQL(cfg SQLConfig, logger *logging.Logger) (*SQL, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "open database %s", cfg.Path)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindStorage, "enable WAL")
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindStorage, "create schema")
	}

	s := &SQL{db: db, logger: logger.WithComponent("sql")}
	if err := s.registerSensor(cfg.SensorName, cfg.Interface); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("alert database open",
		"path", cfg.Path, "sensor", cfg.SensorName, "sid", s.sid, "next_cid", s.nextCID)
	return s, nil
}

func (s *SQL) registerSensor(hostname, iface string) error {
	_, err := s.db.Exec(
		`INSERT INTO sensor (hostname, interface, last_cid) VALUES (?, ?, 0)
		 ON CONFLICT (hostname, interface) DO NOTHING`, hostname, iface)
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "register sensor")
	}

	var lastCID int64
	row := s.db.QueryRow(
		`SELECT sid, last_cid FROM sensor WHERE hostname = ? AND interface = ?`, hostname, iface)
	if err := row.Scan(&s.sid, &lastCID); err != nil {
		return errors.Wrap(err, errors.KindStorage, "load sensor row")
	}
	s.nextCID = lastCID + 1
	return nil
}

// Name implements Sink.
func (s *SQL) Name() string { return "sql" }

// Deliver stores one alert. Non-alert records are ignored.
func (s *SQL) Deliver(ctx context.Context, rec *Record) error {
	if rec.Type != "alert" || rec.Event == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cid := s.nextCID
	if err := s.insert(ctx, cid, rec); err != nil {
		return err
	}
	s.nextCID++
	return nil
}

func (s *SQL) insert(ctx context.Context, cid int64, rec *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "begin transaction")
	}
	defer tx.Rollback()

	e := rec.Event
	_, err = tx.ExecContext(ctx,
		`INSERT INTO event (sid, cid, signature_id, rev, signature, category, severity, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sid, cid,
		e.Int64("alert", "signature_id"), e.Int64("alert", "rev"),
		e.Str("alert", "signature"), e.Str("alert", "category"),
		e.Int64("alert", "severity"), e.Str("timestamp"))
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "insert event")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO iphdr (sid, cid, src_ip, dest_ip, proto) VALUES (?, ?, ?, ?, ?)`,
		s.sid, cid, e.Str("src_ip"), e.Str("dest_ip"), e.Str("proto"))
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "insert iphdr")
	}

	if err := s.insertProtoHeader(ctx, tx, cid, e); err != nil {
		return err
	}

	if payload := e.Str("payload"); payload != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payload (sid, cid, data) VALUES (?, ?, ?)`, s.sid, cid, payload)
		if err != nil {
			return errors.Wrap(err, errors.KindStorage, "insert payload")
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO extra (sid, cid, data) VALUES (?, ?, ?)`, s.sid, cid, string(rec.Data))
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "insert extra")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sensor SET last_cid = ? WHERE sid = ?`, cid, s.sid)
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "advance last_cid")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.KindStorage, "commit alert")
	}
	return nil
}

func (s *SQL) insertProtoHeader(ctx context.Context, tx *sql.Tx, cid int64, e *event.Event) error {
	var err error
	switch strings.ToUpper(e.Str("proto")) {
	case "TCP":
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tcphdr (sid, cid, src_port, dest_port) VALUES (?, ?, ?, ?)`,
			s.sid, cid, e.Int64("src_port"), e.Int64("dest_port"))
	case "UDP":
		_, err = tx.ExecContext(ctx,
			`INSERT INTO udphdr (sid, cid, src_port, dest_port) VALUES (?, ?, ?, ?)`,
			s.sid, cid, e.Int64("src_port"), e.Int64("dest_port"))
	case "ICMP", "ICMPV4", "ICMPV6", "IPV6-ICMP":
		_, err = tx.ExecContext(ctx,
			`INSERT INTO icmphdr (sid, cid, icmp_type, icmp_code) VALUES (?, ?, ?, ?)`,
			s.sid, cid, e.Int64("icmp_type"), e.Int64("icmp_code"))
	default:
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "insert protocol header")
	}
	return nil
}

// Close implements Sink.
func (s *SQL) Close() error {
	return s.db.Close()
}
