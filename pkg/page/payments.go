package page

import (
	"github.com/PuerkitoBio/goquery"
)

// Payment is one row of the payments page.
type Payment struct {
	Character string
	Cells     []string
}

func parsePayments(doc *goquery.Document) []Payment {
	var out []Payment
	doc.Find(".mark-paid-btn").Each(func(_ int, btn *goquery.Selection) {
		character, _ := btn.Attr("data-character")
		if character == "" {
			return
		}
		p := Payment{Character: character}
		btn.Closest("tr").Children().Filter("td").Each(func(_ int, td *goquery.Selection) {
			if td.Find(".mark-paid-btn").Length() > 0 {
				return
			}
			p.Cells = append(p.Cells, collapse(td.Text()))
		})
		out = append(out, p)
	})
	return out
}
