package page

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/shopspring/decimal"
)

// FitOption is one choice of the force-fit selector.
type FitOption struct {
	ID       string
	Name     string
	Selected bool
}

// ContractRow holds the editable parts of a contract row.
type ContractRow struct {
	ID         string
	Subsidy    decimal.Decimal
	HasSubsidy bool
	Suggested  decimal.Decimal
	// Applied is set once the suggestion has been copied into Subsidy.
	Applied    bool
	FitOptions []FitOption
}

// ApplySuggestion copies the suggested amount into an unset (zero) subsidy.
// It reports whether it did so; a row is only ever filled once.
func (r *ContractRow) ApplySuggestion() bool {
	if r.Applied || !r.Subsidy.IsZero() || !r.Suggested.IsPositive() {
		return false
	}
	r.Subsidy = r.Suggested.Round(2)
	r.HasSubsidy = true
	r.Applied = true
	return true
}

// CurrentFit returns the selected force-fit option, if any.
func (r *ContractRow) CurrentFit() (FitOption, bool) {
	for _, o := range r.FitOptions {
		if o.Selected && o.ID != "" {
			return o, true
		}
	}
	return FitOption{}, false
}

// parseFloat mirrors a lenient numeric read: anything unparsable is zero.
func parseFloat(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func headerColumns(t *goquery.Selection) []table.Column {
	var cols []table.Column
	head := t.Find("thead tr").First()
	head.Find("th, td").Each(func(_ int, th *goquery.Selection) {
		key, _ := th.Attr("data-col")
		cols = append(cols, table.Column{Key: key, Label: collapse(th.Text())})
	})
	return cols
}

// bodyRows returns the direct rows of the table body, skipping rows of nested tables.
func bodyRows(t *goquery.Selection) *goquery.Selection {
	return t.ChildrenFiltered("tbody").ChildrenFiltered("tr")
}

func cellOf(td *goquery.Selection) table.Cell {
	val, _ := td.Attr("data-val")
	return table.Cell{Text: collapse(td.Text()), Value: val}
}

// parseContractsTable reads the review table: main rows carry
// class contract-row and data-id, each optionally followed by its detail row.
func parseContractsTable(t *goquery.Selection) (table.Table, map[string]*ContractRow) {
	out := table.Table{Key: ContractsTable, Columns: headerColumns(t)}
	contracts := make(map[string]*ContractRow)

	bodyRows(t).Each(func(_ int, tr *goquery.Selection) {
		switch {
		case tr.HasClass("contract-row"):
			id, _ := tr.Attr("data-id")
			if id == "" {
				return
			}
			row := table.Row{ID: id}
			cr := &ContractRow{ID: id}

			input := tr.Find(`input[data-field="subsidy_amount"]`).First()
			if v, ok := input.Attr("value"); ok && input.Length() > 0 {
				cr.Subsidy = parseFloat(v)
				cr.HasSubsidy = strings.TrimSpace(v) != ""
			}

			tr.Children().Filter("td, th").Each(func(_ int, td *goquery.Selection) {
				cell := cellOf(td)
				if s, ok := td.Attr("data-suggested"); ok {
					cr.Suggested = parseFloat(s)
					if cr.ApplySuggestion() {
						cell.Value = cr.Suggested.String()
					}
				}
				if pct, ok := percentCell(td); ok {
					cell = pct
				}
				row.Cells = append(row.Cells, cell)
			})

			tr.Find(".force-fit-select option").Each(func(_ int, opt *goquery.Selection) {
				v, _ := opt.Attr("value")
				_, selected := opt.Attr("selected")
				cr.FitOptions = append(cr.FitOptions, FitOption{ID: v, Name: collapse(opt.Text()), Selected: selected})
			})

			out.Rows = append(out.Rows, row)
			contracts[id] = cr

		case tr.HasClass("detail-row"):
			parent, _ := tr.Attr("data-id")
			if parent == "" {
				htmlID, _ := tr.Attr("id")
				parent = strings.TrimPrefix(htmlID, "details-")
			}
			if parent == "" {
				return
			}
			out.Rows = append(out.Rows, table.Row{ID: "details-" + parent, Parent: parent})
		}
	})
	return out, contracts
}

// percentCell renders price/basis as a percentage when both are positive.
func percentCell(td *goquery.Selection) (table.Cell, bool) {
	p, okP := td.Attr("data-price")
	b, okB := td.Attr("data-basis")
	if !okP || !okB {
		return table.Cell{}, false
	}
	price, basis := parseFloat(p), parseFloat(b)
	if !price.IsPositive() || !basis.IsPositive() {
		return table.Cell{}, false
	}
	pct := price.Div(basis).Mul(decimal.NewFromInt(100)).StringFixed(2)
	return table.Cell{Text: pct + "%", Value: pct}, true
}

// parsePlainTable reads a table whose body rows are all main rows.
func parsePlainTable(key string, t *goquery.Selection) table.Table {
	out := table.Table{Key: key, Columns: headerColumns(t)}
	bodyRows(t).Each(func(i int, tr *goquery.Selection) {
		id, _ := tr.Attr("data-id")
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		row := table.Row{ID: id}
		tr.Children().Filter("td, th").Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, cellOf(td))
		})
		out.Rows = append(out.Rows, row)
	})
	return out
}

// DescribeFit formats a force-fit option for display.
func DescribeFit(o FitOption) string {
	if o.ID == "" {
		return o.Name
	}
	return fmt.Sprintf("%s (%s)", o.Name, o.ID)
}
