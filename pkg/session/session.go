// Package session keeps the latest snapshot of one page. Reload re-fetches
// it, so every mutation is followed by a fresh read of the server state.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/shopspring/decimal"
)

// PageFetcher fetches raw pages and accepts the CSRF token of the last one.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string) (string, error)
	SetCSRFToken(token string)
}

type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

type Session struct {
	fetch PageFetcher
	path  string
	log   Logger

	mu       sync.RWMutex
	snap     *page.Snapshot
	reloads  int
	onReload []func(*page.Snapshot)
}

func New(f PageFetcher, path string, log Logger) *Session {
	if log == nil {
		log = nopLogger{}
	}
	return &Session{fetch: f, path: path, log: log}
}

// OnReload registers a hook run after every successful reload, for example
// to reset per-page caches.
func (s *Session) OnReload(fn func(*page.Snapshot)) {
	s.mu.Lock()
	s.onReload = append(s.onReload, fn)
	s.mu.Unlock()
}

// Reload fetches and parses the page, replacing the current snapshot.
func (s *Session) Reload(ctx context.Context) error {
	body, err := s.fetch.FetchPage(ctx, s.path)
	if err != nil {
		return fmt.Errorf("loading %q: %w", s.path, err)
	}
	snap, err := page.Parse(body)
	if err != nil {
		return err
	}
	if snap.CSRFToken != "" {
		s.fetch.SetCSRFToken(snap.CSRFToken)
	}

	s.mu.Lock()
	s.snap = snap
	s.reloads++
	hooks := append([]func(*page.Snapshot){}, s.onReload...)
	s.mu.Unlock()

	s.log.Debugf("reloaded %q: %d tables, %d claims", s.path, len(snap.Tables), len(snap.Claims))
	for _, fn := range hooks {
		fn(snap)
	}
	return nil
}

// Snapshot returns the current snapshot, or nil before the first Reload.
func (s *Session) Snapshot() *page.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reloads counts successful reloads.
func (s *Session) Reloads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloads
}

func (s *Session) SubsidyAmount(id string) (decimal.Decimal, bool) {
	snap := s.Snapshot()
	if snap == nil {
		return decimal.Zero, false
	}
	return snap.SubsidyAmount(id)
}

func (s *Session) ClaimEntry(fitID int) (ledger.Entry, bool) {
	snap := s.Snapshot()
	if snap == nil {
		return ledger.Entry{}, false
	}
	return snap.ClaimEntry(fitID)
}
