// Package table implements filtering and single-column sorting of a
// rendered table. Order and visibility are pure functions of the rows and a
// viewstate.State; Engine adds the click-to-sort behaviour and persistence.
package table

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
)

// Cell is one table cell. Value, when non-empty, overrides Text for
// filtering and sorting.
type Cell struct {
	Text  string
	Value string
}

// Key is the text used for filtering and sorting.
func (c Cell) Key() string {
	if c.Value != "" {
		return c.Value
	}
	return c.Text
}

type Column struct {
	Key   string
	Label string
}

// Row is a table row. Detail rows carry the id of the row they expand in
// Parent and always directly follow it.
type Row struct {
	ID     string
	Parent string
	Cells  []Cell
}

func (r Row) IsDetail() bool {
	return r.Parent != ""
}

// Cell returns the cell at idx, or an empty cell when the row is shorter.
func (r Row) Cell(idx int) Cell {
	if idx < 0 || idx >= len(r.Cells) {
		return Cell{}
	}
	return r.Cells[idx]
}

type Table struct {
	Key     string
	Columns []Column
	Rows    []Row
}

// ColumnIndex returns the position of the column with the given key, or -1.
func ColumnIndex(columns []Column, key string) int {
	for i, c := range columns {
		if c.Key != "" && c.Key == key {
			return i
		}
	}
	return -1
}

// HeaderState is the sort annotation of one header.
type HeaderState struct {
	Index  int
	Key    string
	Label  string
	Sorted viewstate.Direction
}

type View struct {
	Order   []string
	Visible map[string]bool
	Headers []HeaderState
}

// VisibleIDs returns the ids of visible non-detail rows in display order.
func (v View) VisibleIDs(rows []Row) []string {
	detail := make(map[string]bool)
	for _, r := range rows {
		if r.IsDetail() {
			detail[r.ID] = true
		}
	}
	var out []string
	for _, id := range v.Order {
		if v.Visible[id] && !detail[id] {
			out = append(out, id)
		}
	}
	return out
}

// Matches reports whether a row passes every non-empty filter. Filter text
// is trimmed and compared case-insensitively as a substring. A filter on an
// unknown column matches nothing.
func Matches(columns []Column, row Row, filters map[string]string) bool {
	for key, raw := range filters {
		needle := strings.ToLower(strings.TrimSpace(raw))
		if needle == "" {
			continue
		}
		text := ""
		if idx := ColumnIndex(columns, key); idx >= 0 {
			text = strings.ToLower(row.Cell(idx).Key())
		}
		if !strings.Contains(text, needle) {
			return false
		}
	}
	return true
}

// Filter computes visibility for every row. Detail rows follow their parent.
func Filter(columns []Column, rows []Row, filters map[string]string) map[string]bool {
	visible := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.IsDetail() {
			continue
		}
		visible[r.ID] = Matches(columns, r, filters)
	}
	for _, r := range rows {
		if !r.IsDetail() {
			continue
		}
		if parentVisible, ok := visible[r.Parent]; ok {
			visible[r.ID] = parentVisible
		} else {
			visible[r.ID] = Matches(columns, r, filters)
		}
	}
	return visible
}

type keyKind int

const (
	kindEmpty keyKind = iota
	kindNumber
	kindString
)

// SortKey is the comparison value of a cell.
type SortKey struct {
	kind keyKind
	num  float64
	str  string
}

var numberStripper = strings.NewReplacer(",", "", " ", "", "%", "")

// KeyOf parses a cell: numeric after stripping commas, spaces and percent
// signs, otherwise the lowercased trimmed text.
func KeyOf(c Cell) SortKey {
	v := strings.TrimSpace(c.Key())
	if v == "" {
		return SortKey{kind: kindEmpty}
	}
	n, err := strconv.ParseFloat(numberStripper.Replace(v), 64)
	if err != nil || math.IsNaN(n) {
		return SortKey{kind: kindString, str: strings.ToLower(v)}
	}
	return SortKey{kind: kindNumber, num: n}
}

// Compare orders empty keys first, then numbers, then strings.
func Compare(a, b SortKey) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case kindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
	case kindString:
		return strings.Compare(a.str, b.str)
	}
	return 0
}

type unit struct {
	main   Row
	detail *Row
}

// group pairs each main row with the detail row directly after it.
// Detail rows without a preceding parent are returned separately.
func group(rows []Row) (units []unit, orphans []Row) {
	for i := 0; i < len(rows); i++ {
		r := rows[i]
		if r.IsDetail() {
			orphans = append(orphans, r)
			continue
		}
		u := unit{main: r}
		if i+1 < len(rows) && rows[i+1].IsDetail() && rows[i+1].Parent == r.ID {
			d := rows[i+1]
			u.detail = &d
			i++
		}
		units = append(units, u)
	}
	return units, orphans
}

// Sort returns the rows ordered by the column at idx. Main rows move
// together with their detail row; equal keys keep their relative order.
// Orphaned detail rows are kept in front, in their original order.
func Sort(rows []Row, idx int, dir viewstate.Direction) []Row {
	units, orphans := group(rows)
	keys := make([]SortKey, len(units))
	for i, u := range units {
		keys[i] = KeyOf(u.main.Cell(idx))
	}
	order := make([]int, len(units))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		c := Compare(keys[order[i]], keys[order[j]])
		if dir == viewstate.Asc {
			return c < 0
		}
		return c > 0
	})

	out := make([]Row, 0, len(rows))
	out = append(out, orphans...)
	for _, i := range order {
		out = append(out, units[i].main)
		if units[i].detail != nil {
			out = append(out, *units[i].detail)
		}
	}
	return out
}

// Headers annotates the active sort column.
func Headers(columns []Column, st viewstate.State) []HeaderState {
	out := make([]HeaderState, len(columns))
	for i, c := range columns {
		out[i] = HeaderState{Index: i, Key: c.Key, Label: c.Label}
		if st.Sort != nil && st.Sort.Idx == i {
			out[i].Sorted = st.Sort.Dir
		}
	}
	return out
}

// Apply computes the view of rows under st without side effects.
func Apply(columns []Column, rows []Row, st viewstate.State) View {
	ordered := rows
	if st.Sort != nil {
		dir := st.Sort.Dir
		if dir == "" {
			dir = viewstate.Asc
		}
		ordered = Sort(rows, st.Sort.Idx, dir)
	}
	order := make([]string, len(ordered))
	for i, r := range ordered {
		order[i] = r.ID
	}
	return View{
		Order:   order,
		Visible: Filter(columns, rows, st.Filters),
		Headers: Headers(columns, st),
	}
}
