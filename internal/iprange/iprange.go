// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package iprange answers "is this address inside one of the configured
// networks" for the collector's ignore list and the fingerprint
// interest list.
package iprange

import (
	"net/netip"
	"strings"

	"github.com/VVelox/meer/internal/errors"
)

// Set is an immutable list of prefixes.
type Set struct {
	prefixes []netip.Prefix
}

// ParseSet builds a Set from CIDR strings. Bare addresses are accepted
// and treated as host routes (/32, /128).
func ParseSet(entries []string) (Set, error) {
	var s Set
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return Set{}, errors.Wrapf(err, errors.KindConfig, "invalid network %q", entry)
			}
			s.prefixes = append(s.prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return Set{}, errors.Wrapf(err, errors.KindConfig, "invalid address %q", entry)
		}
		addr = addr.Unmap()
		s.prefixes = append(s.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return s, nil
}

// MustParseSet is ParseSet for tests and constants known to be valid.
func MustParseSet(entries []string) Set {
	s, err := ParseSet(entries)
	if err != nil {
		panic(err)
	}
	return s
}

// Contains reports whether addr falls inside any prefix of the set.
// IPv4-mapped IPv6 addresses match their IPv4 networks.
func (s Set) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ContainsString parses ip and reports Contains. Unparsable input is
// never inside the set.
func (s Set) ContainsString(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return s.Contains(addr)
}

// Len returns the number of prefixes.
func (s Set) Len() int {
	return len(s.prefixes)
}

// Empty reports whether the set has no prefixes.
func (s Set) Empty() bool {
	return len(s.prefixes) == 0
}
