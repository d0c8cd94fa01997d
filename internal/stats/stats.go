// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package stats turns Suricata stats events into Prometheus gauges so
// engine health shows up next to the bridge's own metrics.
package stats

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// maxLeaves bounds how many gauge updates one stats event may cause.
const maxLeaves = 2048

// Tracker flattens the numeric leaves of stats.* into one gauge per
// leaf, labelled by sensor host and dotted-to-underscored leaf name.
type Tracker struct {
	host   string
	gauge  *prometheus.GaugeVec
	logger *logging.Logger
}

// New registers the stats gauge on reg. defaultHost labels events
// that carry no host field of their own.
func New(defaultHost string, reg prometheus.Registerer, logger *logging.Logger) *Tracker {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meer_suricata_stat",
		Help: "Latest value of a flattened stats counter, by sensor host and leaf name",
	}, []string{"host", "name"})
	reg.MustRegister(g)

	return &Tracker{
		host:   defaultHost,
		gauge:  g,
		logger: logger.WithComponent("stats"),
	}
}

// Observe updates the gauges from one stats event.
func (t *Tracker) Observe(e *event.Event) {
	stats, ok := e.SubOrParse("stats")
	if !ok {
		t.logger.Debug("stats event without stats object")
		return
	}

	host := e.Str("host")
	if host == "" {
		host = t.host
	}

	n := 0
	t.flatten(host, "", stats, &n)
	t.logger.Debug("stats updated", "host", host, "leaves", n)
}

func (t *Tracker) flatten(host, prefix string, obj map[string]any, n *int) {
	for k, v := range obj {
		if *n >= maxLeaves {
			return
		}
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}
		switch val := v.(type) {
		case map[string]any:
			t.flatten(host, name, val, n)
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				continue
			}
			t.gauge.WithLabelValues(host, name).Set(f)
			*n++
		}
	}
}
