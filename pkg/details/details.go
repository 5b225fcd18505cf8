// Package details lazily loads the item list of a contract row and tracks
// which row is expanded. Each row is fetched at most once per page lifetime.
package details

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/aasubsidy/subsidyctl/pkg/remote"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Fetcher loads the items of one contract.
type Fetcher interface {
	ContractItems(ctx context.Context, id string) ([]remote.ContractItem, error)
}

type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Result is what a row shows once its fetch has settled.
type Result struct {
	Items []remote.ContractItem
	Err   error
}

type entry struct {
	done   chan struct{}
	result Result
}

// Phase is the expansion state of a row.
type Phase int

const (
	Collapsed Phase = iota
	Expanding
	Expanded
)

func (p Phase) String() string {
	switch p {
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	default:
		return "collapsed"
	}
}

type Loader struct {
	fetch Fetcher
	log   Logger

	mu      sync.Mutex
	entries map[string]*entry
	open    string
	phase   Phase
}

func NewLoader(f Fetcher, log Logger) *Loader {
	if log == nil {
		log = nopLogger{}
	}
	return &Loader{fetch: f, log: log, entries: make(map[string]*entry)}
}

// Expand returns the items of a row, fetching them on first use. Concurrent
// callers for the same row share one fetch. A failed fetch is not cached, so
// a later Expand retries it.
func (l *Loader) Expand(ctx context.Context, id string) Result {
	l.mu.Lock()
	if e, ok := l.entries[id]; ok {
		l.mu.Unlock()
		<-e.done
		return e.result
	}
	e := &entry{done: make(chan struct{})}
	l.entries[id] = e
	l.mu.Unlock()

	items, err := l.fetch.ContractItems(ctx, id)
	e.result = Result{Items: items, Err: err}

	l.mu.Lock()
	if err != nil {
		l.log.Debugf("loading items of contract %s failed: %v", id, err)
		if l.entries[id] == e {
			delete(l.entries, id)
		}
	}
	l.mu.Unlock()
	close(e.done)
	return e.result
}

// Toggle opens a row, closing whichever row was open, or closes it if it was
// already the open one. Opening starts the fetch and returns its result.
func (l *Loader) Toggle(ctx context.Context, id string) (Phase, Result) {
	l.mu.Lock()
	if l.open == id && l.phase != Collapsed {
		l.open = ""
		l.phase = Collapsed
		l.mu.Unlock()
		return Collapsed, Result{}
	}
	l.open = id
	l.phase = Expanding
	l.mu.Unlock()

	res := l.Expand(ctx, id)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open != id {
		// Another row was opened while this one was loading.
		return Collapsed, res
	}
	l.phase = Expanded
	return Expanded, res
}

// Current returns the open row and its phase.
func (l *Loader) Current() (string, Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open, l.phase
}

// Loaded reports whether a row's items are cached.
func (l *Loader) Loaded(id string) bool {
	l.mu.Lock()
	e, ok := l.entries[id]
	l.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return e.result.Err == nil
	default:
		return false
	}
}

// Reset discards every cached row and collapses the open one.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.entries = make(map[string]*entry)
	l.open = ""
	l.phase = Collapsed
	l.mu.Unlock()
}

// Render writes the item list as a fixed-column table, or the error message.
func Render(w io.Writer, res Result) error {
	if res.Err != nil {
		_, err := fmt.Fprintf(w, "Error: %s\n", res.Err.Error())
		return err
	}
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Type\tQty\tIncluded")
	for _, it := range res.Items {
		included := "no"
		if it.Included {
			included = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Name, p.Sprintf("%d", it.Qty), included)
	}
	return tw.Flush()
}
