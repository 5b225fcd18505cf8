package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHiddenRowsAreExcluded(t *testing.T) {
	s := New()
	s.SetVisible([]string{"1", "2", "3"})
	s.Check("1", true)
	s.Check("3", true)
	assert.Equal(t, []string{"1", "3"}, s.Selected())

	s.SetVisible([]string{"2", "3"})
	assert.Equal(t, []string{"3"}, s.Selected())
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.IsChecked("1"))

	s.SetVisible([]string{"1", "2", "3"})
	assert.Equal(t, []string{"1", "3"}, s.Selected())
}

func TestSelectAllTouchesOnlyVisible(t *testing.T) {
	s := New()
	s.SetVisible([]string{"1", "2"})
	s.Check("9", true)
	s.SelectAllVisible(true)
	assert.Equal(t, []string{"1", "2"}, s.Selected())
	assert.Equal(t, Checked, s.All())

	s.SelectAllVisible(false)
	assert.Empty(t, s.Selected())
	assert.True(t, s.IsChecked("9"))
}

func TestAllState(t *testing.T) {
	tests := []struct {
		name    string
		visible []string
		checked []string
		want    AllState
	}{
		{"nothing visible", nil, []string{"1"}, Unchecked},
		{"none checked", []string{"1", "2"}, nil, Unchecked},
		{"some checked", []string{"1", "2"}, []string{"2"}, Indeterminate},
		{"all checked", []string{"1", "2"}, []string{"1", "2"}, Checked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SetVisible(tt.visible)
			for _, id := range tt.checked {
				s.Check(id, true)
			}
			assert.Equal(t, tt.want, s.All())
		})
	}
}

func TestToggle(t *testing.T) {
	s := New()
	s.SetVisible([]string{"1"})
	assert.True(t, s.Toggle("1"))
	assert.False(t, s.Toggle("1"))
	assert.Empty(t, s.Selected())
}
