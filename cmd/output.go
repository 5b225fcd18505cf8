package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// cellText is what a cell shows: its text, or its sort value for cells that
// only hold inputs. The subsidy column shows the amount entered for the row.
func cellText(snap *page.Snapshot, col table.Column, row table.Row, idx int) string {
	if col.Key == "subsidy" {
		if cr, ok := snap.Contracts[row.ID]; ok && cr.HasSubsidy {
			return cr.Subsidy.StringFixed(2)
		}
	}
	c := row.Cell(idx)
	if c.Text != "" {
		return c.Text
	}
	return c.Value
}

// renderTable prints the visible rows in display order. Columns without a
// key (checkboxes, actions) are skipped.
func renderTable(w io.Writer, e *table.Engine, snap *page.Snapshot) error {
	t := e.Table()
	v := e.View()

	byID := make(map[string]table.Row, len(t.Rows))
	for _, r := range t.Rows {
		byID[r.ID] = r
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var head []string
	for _, h := range v.Headers {
		if h.Key == "" {
			continue
		}
		label := strings.ToUpper(h.Label)
		if label == "" {
			label = strings.ToUpper(h.Key)
		}
		switch h.Sorted {
		case viewstate.Asc:
			label += " ^"
		case viewstate.Desc:
			label += " v"
		}
		head = append(head, label)
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))

	shown, total := 0, 0
	for _, id := range v.Order {
		row := byID[id]
		if row.IsDetail() {
			continue
		}
		total++
		if !v.Visible[id] {
			continue
		}
		shown++
		var cells []string
		for i, col := range t.Columns {
			if col.Key == "" {
				continue
			}
			cells = append(cells, cellText(snap, col, row, i))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	st := e.State()
	var active []string
	for k, f := range st.Filters {
		if strings.TrimSpace(f) != "" {
			active = append(active, k+"="+strconv.Quote(f))
		}
	}
	sort.Strings(active)
	summary := printer.Sprintf("%d of %d rows shown", shown, total)
	if len(active) > 0 {
		summary += " (filters: " + strings.Join(active, ", ") + ")"
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

func renderClaims(w io.Writer, entries []ledger.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIT\tNAME\tNEEDED\tAVAILABLE\tCLAIMED\tYOURS\tCLAIMED BY")
	for _, e := range entries {
		fmt.Fprintln(tw, printer.Sprintf("%d\t%s\t%d\t%d\t%d\t%d\t%s",
			e.FitID, e.FitName, e.Needed, e.Available, e.ClaimedTotal, e.ClaimedByCaller, e.ClaimantsLabel()))
	}
	return tw.Flush()
}

func renderPayments(w io.Writer, payments []page.Payment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range payments {
		fmt.Fprintln(tw, p.Character+"\t"+strings.Join(p.Cells, "\t"))
	}
	return tw.Flush()
}
