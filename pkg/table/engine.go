package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
)

var ErrUnknownColumn = errors.New("unknown column")

// StateSaver persists view state changes.
type StateSaver interface {
	Save(ctx context.Context, st viewstate.State) error
}

// Engine holds the live view state of one table.
type Engine struct {
	table Table
	state viewstate.State
	saver StateSaver
}

func NewEngine(t Table, initial viewstate.State, saver StateSaver) *Engine {
	return &Engine{table: t, state: initial.Clone(), saver: saver}
}

// Init applies and persists the starting sort. A stored sort on a sortable
// column is re-applied (an unknown direction means asc); otherwise the id
// column is sorted descending.
func (e *Engine) Init(ctx context.Context) error {
	if s := e.state.Sort; s != nil && e.sortable(s.Idx) {
		dir := s.Dir
		if !dir.Valid() {
			dir = viewstate.Asc
		}
		return e.SortBy(ctx, s.Idx, dir)
	}
	idx := ColumnIndex(e.table.Columns, "id")
	if idx < 0 {
		return nil
	}
	return e.SortBy(ctx, idx, viewstate.Desc)
}

func (e *Engine) sortable(idx int) bool {
	return idx >= 0 && idx < len(e.table.Columns) && e.table.Columns[idx].Key != ""
}

// SortBy sorts by one column and persists {idx, dir}.
func (e *Engine) SortBy(ctx context.Context, idx int, dir viewstate.Direction) error {
	if !e.sortable(idx) {
		return fmt.Errorf("%w: index %d", ErrUnknownColumn, idx)
	}
	e.state.Sort = &viewstate.Sort{Idx: idx, Dir: dir}
	e.table.Rows = Sort(e.table.Rows, idx, dir)
	return e.persist(ctx)
}

// ToggleSort flips the active column from asc to desc; anything else sorts asc.
func (e *Engine) ToggleSort(ctx context.Context, idx int) error {
	dir := viewstate.Asc
	if cur := e.state.Sort; cur != nil && cur.Idx == idx && cur.Dir == viewstate.Asc {
		dir = viewstate.Desc
	}
	return e.SortBy(ctx, idx, dir)
}

// SetFilter sets the filter text of a column key and persists it.
func (e *Engine) SetFilter(ctx context.Context, key, text string) error {
	if e.state.Filters == nil {
		e.state.Filters = make(map[string]string)
	}
	e.state.Filters[key] = text
	return e.persist(ctx)
}

func (e *Engine) persist(ctx context.Context) error {
	if e.saver == nil {
		return nil
	}
	return e.saver.Save(ctx, e.state.Clone())
}

func (e *Engine) State() viewstate.State {
	return e.state.Clone()
}

func (e *Engine) Table() Table {
	return e.table
}

// View returns the current order, visibility and header annotations.
func (e *Engine) View() View {
	return Apply(e.table.Columns, e.table.Rows, e.state)
}

// VisibleIDs lists the visible main rows in display order.
func (e *Engine) VisibleIDs() []string {
	return e.View().VisibleIDs(e.table.Rows)
}
