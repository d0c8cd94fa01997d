// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

const (
	esFlushTimeout = 10 * time.Second
	esBulkRetries  = 3
)

// ElasticConfig carries the cluster address and batching knobs.
type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool

	// Index is the date-stamped pattern generic events append to.
	Index string

	// NDPIndex holds observation documents addressed by id.
	NDPIndex string

	// Batch is how many documents buffer before a bulk flush.
	Batch int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration
}

// Elastic batches documents into bulk requests. NDP observations are
// indexed under their observation id so a repeat overwrites in place;
// everything else appends to an index named for the day.
type Elastic struct {
	es       *elasticsearch.Client
	index    string
	ndpIndex string
	batch    int
	clk      clock.Clock
	ctr      *counters.Counters
	logger   *logging.Logger

	mu  sync.Mutex
	buf bytes.Buffer
	n   int

	stop chan struct{}
	done chan struct{}
}

// NewElastic connects to the cluster and starts the flush ticker.
func NewElastic(cfg ElasticConfig, clk clock.Clock, ctr *counters.Counters, logger *logging.Logger) (*Elastic, error) {
	escfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.Insecure {
		escfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	es, err := elasticsearch.NewClient(escfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfig, "elasticsearch client for %s", cfg.URL)
	}

	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Index == "" {
		cfg.Index = "suricata"
	}
	if cfg.NDPIndex == "" {
		cfg.NDPIndex = "ndp"
	}

	s := &Elastic{
		es:       es,
		index:    cfg.Index,
		ndpIndex: cfg.NDPIndex,
		batch:    cfg.Batch,
		clk:      clk,
		ctr:      ctr,
		logger:   logger.WithComponent("elasticsearch"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.flusher(cfg.FlushInterval)
	return s, nil
}

// Name implements Sink.
func (s *Elastic) Name() string { return "elasticsearch" }

// Deliver buffers one document and flushes when the batch is full.
func (s *Elastic) Deliver(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.DocID != "" {
		fmt.Fprintf(&s.buf, `{"index":{"_index":%q,"_id":%q}}`, s.ndpIndex, rec.DocID)
	} else {
		day := s.clk.Now().UTC().Format("2006.01.02")
		fmt.Fprintf(&s.buf, `{"index":{"_index":"%s-%s"}}`, s.index, day)
	}
	s.buf.WriteByte('\n')
	s.buf.Write(rec.Data)
	s.buf.WriteByte('\n')
	s.n++

	if s.n < s.batch {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush sends any buffered documents immediately.
func (s *Elastic) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Elastic) flushLocked(ctx context.Context) error {
	if s.n == 0 {
		return nil
	}
	body := make([]byte, s.buf.Len())
	copy(body, s.buf.Bytes())
	docs := s.n

	// The batch is dropped whether or not the cluster took it.
	// Best-effort delivery; holding failed batches would stall the
	// pipeline behind a dead cluster.
	s.buf.Reset()
	s.n = 0

	err := s.bulk(ctx, body)
	if err != nil {
		return errors.Wrapf(err, errors.KindNetwork, "bulk of %d documents", docs)
	}
	s.logger.Debug("bulk flushed", "docs", docs)
	return nil
}

func (s *Elastic) bulk(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= esBulkRetries; attempt++ {
		res, err := s.es.Bulk(bytes.NewReader(body), s.es.Bulk.WithContext(ctx))
		if err != nil {
			return err
		}

		if res.StatusCode == http.StatusTooManyRequests {
			res.Body.Close()
			lastErr = errors.New(errors.KindNetwork, "cluster rejected bulk with 429")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			continue
		}

		if res.IsError() {
			head, _ := io.ReadAll(io.LimitReader(res.Body, 256))
			res.Body.Close()
			return errors.Errorf(errors.KindNetwork, "bulk failed: %s: %s", res.Status(), head)
		}

		s.countItemErrors(res.Body)
		res.Body.Close()
		return nil
	}
	return lastErr
}

// countItemErrors reads the bulk response and logs documents the
// cluster refused. The batch as a whole still counts as delivered.
func (s *Elastic) countItemErrors(body io.Reader) {
	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil || !parsed.Errors {
		return
	}
	failed := 0
	for _, item := range parsed.Items {
		for _, r := range item {
			if r.Status >= 300 {
				failed++
			}
		}
	}
	if failed > 0 {
		s.logger.Warn("cluster refused documents in bulk", "failed", failed)
		s.ctr.SinkError("elasticsearch")
	}
}

func (s *Elastic) flusher(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), esFlushTimeout)
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("periodic flush failed", "error", err)
				s.ctr.SinkError("elasticsearch")
			}
			cancel()
		}
	}
}

// Close stops the ticker and flushes what is left.
func (s *Elastic) Close() error {
	close(s.stop)
	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), esFlushTimeout)
	defer cancel()
	return s.Flush(ctx)
}
