package page

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, name string) *Snapshot {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	s, err := Parse(string(raw))
	require.NoError(t, err)
	return s
}

func TestParseReviewConfig(t *testing.T) {
	s := load(t, "review.html")

	assert.True(t, s.Config.IsAuthenticated)
	assert.False(t, s.Config.IsAdmin)
	require.NotNil(t, s.Config.TablePref)
	assert.Equal(t, viewstate.State{
		Sort:    &viewstate.Sort{Idx: 2, Dir: viewstate.Asc},
		Filters: map[string]string{"location": "jita"},
	}, s.Config.TablePref.State())
	assert.Equal(t, "Pick something first.", s.Config.Lang.SelectAtLeastOne)
	assert.Equal(t, config.DefaultLang().ReasonRequired, s.Config.Lang.ReasonRequired)
	assert.Equal(t, "form-token-1", s.CSRFToken)
}

func TestParseReviewTable(t *testing.T) {
	s := load(t, "review.html")
	tbl, ok := s.Tables[ContractsTable]
	require.True(t, ok)

	require.Len(t, tbl.Columns, 7)
	assert.Equal(t, "", tbl.Columns[0].Key)
	assert.Equal(t, "id", tbl.Columns[1].Key)
	assert.Equal(t, 1, table.ColumnIndex(tbl.Columns, "id"))

	var ids []string
	for _, r := range tbl.Rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"101", "details-101", "102", "details-102"}, ids)
	assert.Equal(t, "101", tbl.Rows[1].Parent)

	first := tbl.Rows[0]
	assert.Equal(t, "Jita IV - Moon 4", first.Cell(2).Text)
	assert.Equal(t, "1250000", first.Cell(3).Key())
	assert.Equal(t, table.Cell{Text: "12.50%", Value: "12.50"}, first.Cell(4))
	assert.Equal(t, "1500000", first.Cell(5).Value)

	second := tbl.Rows[2]
	assert.Equal(t, table.Cell{Text: "-"}, second.Cell(4))
	assert.Equal(t, "", second.Cell(5).Value)
}

func TestSuggestionOnlyFillsUnsetAmounts(t *testing.T) {
	s := load(t, "review.html")

	amount, ok := s.SubsidyAmount("101")
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.NewFromInt(1500000)))
	assert.True(t, s.Contracts["101"].Applied)

	amount, ok = s.SubsidyAmount("102")
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("200000.5")))
	assert.False(t, s.Contracts["102"].Applied)

	// Never reapplied once set.
	assert.False(t, s.Contracts["101"].ApplySuggestion())

	_, ok = s.SubsidyAmount("999")
	assert.False(t, ok)
}

func TestApplySuggestion(t *testing.T) {
	tests := []struct {
		name      string
		current   decimal.Decimal
		suggested decimal.Decimal
		want      bool
	}{
		{"unset with suggestion", decimal.Zero, decimal.RequireFromString("10.555"), true},
		{"unset without suggestion", decimal.Zero, decimal.Zero, false},
		{"negative suggestion", decimal.Zero, decimal.NewFromInt(-5), false},
		{"already set", decimal.NewFromInt(3), decimal.NewFromInt(10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ContractRow{Subsidy: tt.current, Suggested: tt.suggested}
			assert.Equal(t, tt.want, r.ApplySuggestion())
			if tt.want {
				assert.Equal(t, "10.56", r.Subsidy.StringFixed(2))
			}
		})
	}
}

func TestForceFitOptions(t *testing.T) {
	s := load(t, "review.html")
	cr := s.Contracts["101"]
	require.Len(t, cr.FitOptions, 3)
	fit, ok := cr.CurrentFit()
	require.True(t, ok)
	assert.Equal(t, FitOption{ID: "3", Name: "Harbinger Navy", Selected: true}, fit)
	assert.Equal(t, "Harbinger Navy (3)", DescribeFit(fit))

	_, ok = s.Contracts["102"].CurrentFit()
	assert.False(t, ok)
}

func TestParseSummary(t *testing.T) {
	s := load(t, "summary.html")

	assert.True(t, s.Config.IsAuthenticated)
	assert.True(t, s.Config.IsAdmin)
	assert.Nil(t, s.Config.TablePref)
	assert.Equal(t, "meta-token-2", s.CSRFToken)

	tbl := s.Tables[SummaryTable]
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "3", tbl.Rows[0].ID)
	assert.Equal(t, "2", tbl.Rows[1].ID)

	require.Len(t, s.Claims, 2)
	e, ok := s.ClaimEntry(3)
	require.True(t, ok)
	assert.Equal(t, ledger.Entry{
		FitID: 3, FitName: "Harbinger Navy", Needed: 12000, Available: 4, ClaimedTotal: 7, ClaimedByCaller: 5,
		Others:        []ledger.Claimant{{Identity: 42, DisplayName: "Pilot A", Quantity: 2}},
		ClaimantsText: "Pilot A (2)",
	}, e)

	e, ok = s.ClaimEntry(4)
	require.True(t, ok)
	assert.Equal(t, []ledger.Claimant{{DisplayName: "Pilot B", Quantity: 1}, {DisplayName: "Pilot C", Quantity: 2}}, e.Others)

	require.Len(t, s.Payments, 1)
	assert.Equal(t, Payment{Character: "Some Pilot", Cells: []string{"Some Pilot", "3", "4,500,000"}}, s.Payments[0])
}

func TestParseClaimants(t *testing.T) {
	assert.Nil(t, ParseClaimants(" - "))
	assert.Empty(t, ParseClaimants(""))
	assert.Equal(t, []ledger.Claimant{{DisplayName: "No Qty"}}, ParseClaimants("No Qty"))
}

func TestParseEmptyPage(t *testing.T) {
	s, err := Parse("<html><body>nothing here</body></html>")
	require.NoError(t, err)
	assert.Empty(t, s.Tables)
	assert.Empty(t, s.Claims)
	assert.Equal(t, config.DefaultLang(), s.Config.Lang)
	assert.Equal(t, "", s.CSRFToken)
}
