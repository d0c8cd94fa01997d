// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package geoip annotates event addresses from a MaxMind database.
package geoip

import (
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/VVelox/meer/internal/errors"
)

// DB wraps a City database reader. Reload swaps the reader in place so
// a SIGHUP can pick up a refreshed database without a restart.
type DB struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	path   string
}

// Open loads the database at path. A missing or unreadable database is
// a configuration error.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.KindConfig, "geoip database %s", path)
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfig, "open geoip database %s", path)
	}

	return &DB{reader: reader, path: path}, nil
}

// Record is the annotation spliced into alerts.
type Record struct {
	Country     string  `json:"country,omitempty"`
	Subdivision string  `json:"subdivision,omitempty"`
	City        string  `json:"city,omitempty"`
	Postal      string  `json:"postal,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Lookup annotates ip. Unparseable addresses and addresses the
// database has nothing for report ok=false.
func (d *DB) Lookup(ip string) (Record, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Record{}, false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	city, err := d.reader.City(parsed)
	if err != nil {
		return Record{}, false
	}

	rec := Record{
		Country:   city.Country.IsoCode,
		City:      city.City.Names["en"],
		Postal:    city.Postal.Code,
		Timezone:  city.Location.TimeZone,
		Latitude:  city.Location.Latitude,
		Longitude: city.Location.Longitude,
	}
	if len(city.Subdivisions) > 0 {
		rec.Subdivision = city.Subdivisions[0].IsoCode
	}

	if rec == (Record{}) {
		return Record{}, false
	}
	return rec, true
}

// Reload reopens the database from the original path.
func (d *DB) Reload() error {
	reader, err := geoip2.Open(d.path)
	if err != nil {
		return errors.Wrapf(err, errors.KindConfig, "reload geoip database %s", d.path)
	}

	d.mu.Lock()
	if d.reader != nil {
		d.reader.Close()
	}
	d.reader = reader
	d.mu.Unlock()
	return nil
}

// Path returns the database path.
func (d *DB) Path() string {
	return d.path
}

// Close releases the reader.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader != nil {
		return d.reader.Close()
	}
	return nil
}
