package page

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/tidwall/gjson"
)

func intAttr(s *goquery.Selection, name string) int {
	v, _ := s.Attr(name)
	n, err := ledger.ParseQuantity(v)
	if err != nil {
		return 0
	}
	return n
}

// parseClaims reads every .claim-link element. The same fit may appear more
// than once on a page; the first occurrence wins.
func parseClaims(doc *goquery.Document) []ledger.Entry {
	var out []ledger.Entry
	seen := make(map[int]bool)
	doc.Find(".claim-link").Each(func(_ int, s *goquery.Selection) {
		fitID := intAttr(s, "data-fit-id")
		if fitID <= 0 || seen[fitID] {
			return
		}
		seen[fitID] = true

		name, _ := s.Attr("data-fit-name")
		contract, _ := s.Attr("data-contract-id")
		text, _ := s.Attr("data-claimants")
		e := ledger.Entry{
			FitID:           fitID,
			FitName:         strings.TrimSpace(name),
			ContractID:      contract,
			Needed:          intAttr(s, "data-needed"),
			Available:       intAttr(s, "data-available"),
			ClaimedTotal:    intAttr(s, "data-claimed-total"),
			ClaimedByCaller: intAttr(s, "data-claimed-me"),
			ClaimantsText:   strings.TrimSpace(text),
		}
		if raw, ok := s.Attr("data-claimants-json"); ok && gjson.Valid(raw) {
			e.Others = claimantsFromJSON(raw)
		} else {
			e.Others = ParseClaimants(e.ClaimantsText)
		}
		out = append(out, e)
	})
	return out
}

func claimantsFromJSON(raw string) []ledger.Claimant {
	var out []ledger.Claimant
	gjson.Parse(raw).ForEach(func(_, c gjson.Result) bool {
		out = append(out, ledger.Claimant{
			Identity:    int(c.Get("user_id").Int()),
			DisplayName: c.Get("name").String(),
			Quantity:    int(c.Get("qty").Int()),
		})
		return true
	})
	return out
}

var claimantPart = regexp.MustCompile(`^(.*?)\s*\((\d+)\)$`)

// ParseClaimants reads the "Name (qty), Other (qty)" summary. Identities are
// unknown in this form and left zero.
func ParseClaimants(text string) []ledger.Claimant {
	var out []ledger.Claimant
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		c := ledger.Claimant{DisplayName: part}
		if m := claimantPart.FindStringSubmatch(part); len(m) == 3 {
			c.DisplayName = m[1]
			c.Quantity, _ = ledger.ParseQuantity(m[2])
		}
		out = append(out, c)
	}
	return out
}
