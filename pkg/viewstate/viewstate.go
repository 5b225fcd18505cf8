// Package viewstate persists the sort and filter state of a table, locally
// and, for authenticated sessions, as a per-account preference on the server.
package viewstate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aasubsidy/subsidyctl/pkg/remote"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Valid reports whether d is asc or desc.
func (d Direction) Valid() bool {
	return d == Asc || d == Desc
}

type Sort struct {
	Idx int       `json:"idx"`
	Dir Direction `json:"dir"`
}

type State struct {
	Sort    *Sort             `json:"sort,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Clone returns a deep copy so callers can mutate it freely.
func (s State) Clone() State {
	out := State{}
	if s.Sort != nil {
		sort := *s.Sort
		out.Sort = &sort
	}
	if s.Filters != nil {
		out.Filters = make(map[string]string, len(s.Filters))
		for k, v := range s.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// ParseState decodes a stored state. Absent or corrupt input yields the empty state.
func ParseState(raw string) State {
	var st State
	if strings.TrimSpace(raw) == "" {
		return State{}
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}
	}
	return st
}

// ServerPref is the preference the server renders into the page.
// Filters is itself a JSON-encoded object.
type ServerPref struct {
	SortIdx int
	SortDir string
	Filters string
}

func (p ServerPref) State() State {
	st := State{Sort: &Sort{Idx: p.SortIdx, Dir: Direction(p.SortDir)}}
	raw := p.Filters
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	var filters map[string]string
	if err := json.Unmarshal([]byte(raw), &filters); err == nil && len(filters) > 0 {
		st.Filters = filters
	}
	return st
}

// Logger abstracts logging so callers can pass logrus or nothing.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// LocalStore is the durable per-table key/value store.
type LocalStore interface {
	GetViewState(ctx context.Context, tableKey string) (string, bool, error)
	PutViewState(ctx context.Context, tableKey, stateJSON string) error
	DeleteViewState(ctx context.Context, tableKey string) error
}

// RemoteSaver mirrors the preference on the server.
type RemoteSaver interface {
	SaveTablePref(ctx context.Context, pref remote.TablePref) error
}

type Options struct {
	TableKey string
	Local    LocalStore
	// Remote may be nil for tables the server keeps no preference for.
	Remote        RemoteSaver
	Authenticated bool
	// WithFilters is false for tables that only persist their sort.
	WithFilters bool
	ServerPref  *ServerPref
	Log         Logger
}

type Store struct {
	opts Options
	log  Logger
}

func New(opts Options) *Store {
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Store{opts: opts, log: log}
}

func (s *Store) TableKey() string {
	return s.opts.TableKey
}

// Load returns the starting state. A server preference fully supersedes the
// local copy. Errors never surface: the worst case is the empty state.
func (s *Store) Load(ctx context.Context) State {
	if s.opts.ServerPref != nil {
		return s.trim(s.opts.ServerPref.State())
	}
	if s.opts.Local == nil {
		return State{}
	}
	raw, ok, err := s.opts.Local.GetViewState(ctx, s.opts.TableKey)
	if err != nil {
		s.log.Warnf("could not read %s view state: %v", s.opts.TableKey, err)
		return State{}
	}
	if !ok {
		return State{}
	}
	return s.trim(ParseState(raw))
}

func (s *Store) trim(st State) State {
	if !s.opts.WithFilters {
		st.Filters = nil
	}
	return st
}

// Save writes the state locally, then best-effort to the server when the
// session is authenticated. Remote failures are logged and dropped.
func (s *Store) Save(ctx context.Context, st State) error {
	st = s.trim(st)
	if s.opts.Local != nil {
		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := s.opts.Local.PutViewState(ctx, s.opts.TableKey, string(raw)); err != nil {
			return err
		}
	}

	if !s.opts.Authenticated || s.opts.Remote == nil {
		return nil
	}
	if err := s.opts.Remote.SaveTablePref(ctx, ToPref(st)); err != nil {
		s.log.Debugf("table preference sync failed: %v", err)
	}
	return nil
}

// Reset drops the local copy.
func (s *Store) Reset(ctx context.Context) error {
	if s.opts.Local == nil {
		return nil
	}
	return s.opts.Local.DeleteViewState(ctx, s.opts.TableKey)
}

// ToPref builds the server payload: a missing sort is sent as index 0, descending.
func ToPref(st State) remote.TablePref {
	pref := remote.TablePref{SortIdx: 0, SortDir: string(Desc), Filters: map[string]string{}}
	if st.Sort != nil {
		pref.SortIdx = st.Sort.Idx
		if st.Sort.Dir != "" {
			pref.SortDir = string(st.Sort.Dir)
		}
	}
	for k, v := range st.Filters {
		pref.Filters[k] = v
	}
	return pref
}
