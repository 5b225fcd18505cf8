// Package search runs debounced location lookups. Only the last query typed
// within the delay is sent, and only the answer to the latest query is
// delivered. A lookup already sent is never cancelled.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/aasubsidy/subsidyctl/pkg/remote"
)

const (
	DefaultDelay  = 300 * time.Millisecond
	DefaultMinLen = 3
)

type Searcher interface {
	LocationSearch(ctx context.Context, query, category string) ([]remote.Location, error)
}

type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Results receives the locations for query. A nil slice means the result
// list should be hidden.
type Results func(query string, locations []remote.Location)

type Debouncer struct {
	Delay    time.Duration
	MinLen   int
	Category string

	search  Searcher
	deliver Results
	log     Logger

	mu         sync.Mutex
	timer      *time.Timer
	seq        uint64
	pending    string
	pendingCtx context.Context
	// wg counts scheduled and running lookups.
	wg sync.WaitGroup
}

func NewDebouncer(s Searcher, category string, deliver Results, log Logger) *Debouncer {
	if log == nil {
		log = nopLogger{}
	}
	return &Debouncer{
		Delay:    DefaultDelay,
		MinLen:   DefaultMinLen,
		Category: category,
		search:   s,
		deliver:  deliver,
		log:      log,
	}
}

// stopLocked drops the pending query and marks any lookup in flight stale.
func (d *Debouncer) stopLocked() {
	d.seq++
	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
}

// Input records a keystroke. Queries shorter than MinLen runes, whitespace
// included, hide the results right away without a request. The query is
// sent as typed.
func (d *Debouncer) Input(ctx context.Context, query string) {
	d.mu.Lock()
	d.stopLocked()
	if len([]rune(query)) < d.MinLen {
		d.mu.Unlock()
		d.deliver(query, nil)
		return
	}
	seq := d.seq
	d.pending, d.pendingCtx = query, ctx
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.Delay, func() {
		defer d.wg.Done()
		d.run(ctx, seq, query)
	})
	d.mu.Unlock()
}

func (d *Debouncer) current(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return seq == d.seq
}

func (d *Debouncer) run(ctx context.Context, seq uint64, query string) {
	if !d.current(seq) {
		return
	}
	locations, err := d.search.LocationSearch(ctx, query, d.Category)
	if !d.current(seq) {
		d.log.Debugf("dropping stale results for %q", query)
		return
	}
	if err != nil {
		d.log.Debugf("location search %q failed: %v", query, err)
		d.deliver(query, nil)
		return
	}
	if locations == nil {
		locations = []remote.Location{}
	}
	d.deliver(query, locations)
}

// Flush sends a pending query right away and waits for every lookup in flight.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil && d.timer.Stop() {
		d.timer = nil
		query, seq, ctx := d.pending, d.seq, d.pendingCtx
		d.mu.Unlock()
		d.run(ctx, seq, query)
		d.wg.Done()
	} else {
		d.mu.Unlock()
	}
	d.wg.Wait()
}

// Stop drops the pending query. The answer of a lookup in flight is discarded.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopLocked()
	d.mu.Unlock()
}
