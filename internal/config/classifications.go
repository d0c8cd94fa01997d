// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/VVelox/meer/internal/errors"
)

// Classification is one entry from a Snort-style classification.config.
type Classification struct {
	Shorthand   string
	Description string
	Priority    int
}

// LoadClassifications reads a classification.config file. Entries look
// like:
//
//	config classification: misc-attack,Misc Attack,2
func LoadClassifications(path string) (map[string]Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "failed to open classification file")
	}
	defer f.Close()
	return ParseClassifications(f)
}

// ParseClassifications parses classification.config content. Unknown
// and comment lines are skipped; malformed entries fail the load so a
// typo never silently drops half the table.
func ParseClassifications(r io.Reader) (map[string]Classification, error) {
	out := make(map[string]Classification)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "config classification:") {
			continue
		}

		body := strings.TrimSpace(strings.TrimPrefix(line, "config classification:"))
		parts := strings.SplitN(body, ",", 3)
		if len(parts) != 3 {
			return nil, errors.Errorf(errors.KindParse, "classification line %d has %d fields, want 3", lineNo, len(parts))
		}

		prio, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindParse, "classification line %d has a non-numeric priority", lineNo)
		}

		shorthand := strings.ToLower(strings.TrimSpace(parts[0]))
		out[shorthand] = Classification{
			Shorthand:   shorthand,
			Description: strings.TrimSpace(parts[1]),
			Priority:    prio,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "failed to read classification file")
	}

	return out, nil
}
