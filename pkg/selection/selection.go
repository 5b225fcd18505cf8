// Package selection tracks the bulk-action checkboxes of a table.
// Checked rows that are currently hidden keep their bit but never count.
package selection

import "sync"

// AllState is the state of the select-all checkbox.
type AllState int

const (
	Unchecked AllState = iota
	Indeterminate
	Checked
)

func (s AllState) String() string {
	switch s {
	case Checked:
		return "checked"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unchecked"
	}
}

type Set struct {
	mu      sync.Mutex
	visible []string
	shown   map[string]bool
	checked map[string]bool
}

func New() *Set {
	return &Set{shown: map[string]bool{}, checked: map[string]bool{}}
}

// SetVisible records the visible row ids in display order.
func (s *Set) SetVisible(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = append([]string(nil), ids...)
	s.shown = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.shown[id] = true
	}
}

func (s *Set) Check(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.checked[id] = true
	} else {
		delete(s.checked, id)
	}
}

func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checked[id] {
		delete(s.checked, id)
		return false
	}
	s.checked[id] = true
	return true
}

// SelectAllVisible checks or unchecks every visible row. Hidden rows are untouched.
func (s *Set) SelectAllVisible(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.visible {
		if on {
			s.checked[id] = true
		} else {
			delete(s.checked, id)
		}
	}
}

// Selected returns the checked visible ids in display order.
func (s *Set) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.visible {
		if s.checked[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *Set) Count() int {
	return len(s.Selected())
}

// IsChecked reports the raw bit, regardless of visibility.
func (s *Set) IsChecked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checked[id]
}

func (s *Set) All() AllState {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.visible {
		if s.checked[id] {
			n++
		}
	}
	switch {
	case len(s.visible) > 0 && n == len(s.visible):
		return Checked
	case n > 0:
		return Indeterminate
	default:
		return Unchecked
	}
}
