// Package page parses the HTML pages of the subsidy application into a
// Snapshot: table rows, claim entries, payment rows and the configuration the
// server renders into every page.
package page

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	ContractsTable = "contracts"
	SummaryTable   = "summary"
)

// Config is the page-render-time configuration.
type Config struct {
	IsAuthenticated bool
	IsAdmin         bool
	TablePref       *viewstate.ServerPref
	Lang            config.Lang
}

type Snapshot struct {
	Config    Config
	CSRFToken string
	Tables    map[string]table.Table
	Contracts map[string]*ContractRow
	Claims    []ledger.Entry
	Payments  []Payment
}

// Parse reads one page. Missing sections are left empty.
func Parse(body string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	s := &Snapshot{
		Config:    parseConfig(doc),
		CSRFToken: csrfToken(doc),
		Tables:    make(map[string]table.Table),
		Contracts: make(map[string]*ContractRow),
	}

	if sel := doc.Find("table#contractsTable").First(); sel.Length() > 0 {
		t, rows := parseContractsTable(sel)
		s.Tables[ContractsTable] = t
		s.Contracts = rows
	}
	if sel := doc.Find("table#summaryTable").First(); sel.Length() > 0 {
		s.Tables[SummaryTable] = parsePlainTable(SummaryTable, sel)
	}
	s.Claims = parseClaims(doc)
	s.Payments = parsePayments(doc)
	return s, nil
}

// SubsidyAmount returns the subsidy currently entered for a contract.
func (s *Snapshot) SubsidyAmount(id string) (decimal.Decimal, bool) {
	row, found := s.Contracts[id]
	if !found || !row.HasSubsidy {
		return decimal.Zero, false
	}
	return row.Subsidy, true
}

// ClaimEntry returns the claim state of a fit.
func (s *Snapshot) ClaimEntry(fitID int) (ledger.Entry, bool) {
	for _, e := range s.Claims {
		if e.FitID == fitID {
			return e, true
		}
	}
	return ledger.Entry{}, false
}

var csrfPatterns = []*regexp.Regexp{
	regexp.MustCompile(`csrfmiddlewaretoken["'\s:=]+["']([^"']+)["']`),
	regexp.MustCompile(`"csrfToken"\s*:\s*"([^"]+)"`),
}

func csrfToken(doc *goquery.Document) string {
	if v, ok := doc.Find("input[name=csrfmiddlewaretoken]").First().Attr("value"); ok && v != "" {
		return v
	}
	token := ""
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if name == "csrf-token" || name == "csrf_token" || name == "csrfmiddlewaretoken" {
			token, _ = s.Attr("content")
		}
		return token == ""
	})
	if token != "" {
		return token
	}
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, re := range csrfPatterns {
			if m := re.FindStringSubmatch(text); len(m) > 1 {
				token = m[1]
				return false
			}
		}
		return true
	})
	return token
}

var (
	configAssign = regexp.MustCompile(`(?s)AASubsidyConfig\s*=\s*(\{.*?\})\s*;`)
	boolField    = func(name string) *regexp.Regexp {
		return regexp.MustCompile(name + `["']?\s*:\s*(true|false)`)
	}
	authField  = boolField("isAuthenticated")
	adminField = boolField("isAdmin")
)

// parseConfig reads the JSON config block, falling back to the inline
// script assignment. Keys that cannot be read keep their zero value.
func parseConfig(doc *goquery.Document) Config {
	cfg := Config{Lang: config.DefaultLang()}

	raw := strings.TrimSpace(doc.Find(`script#aasubsidy-config`).First().Text())
	if raw == "" {
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := configAssign.FindStringSubmatch(s.Text()); len(m) > 1 {
				raw = m[1]
				return false
			}
			return true
		})
	}
	if raw == "" {
		return cfg
	}

	if !gjson.Valid(raw) {
		// Not strict JSON: pick out the capability flags only.
		if m := authField.FindStringSubmatch(raw); len(m) > 1 {
			cfg.IsAuthenticated = m[1] == "true"
		}
		if m := adminField.FindStringSubmatch(raw); len(m) > 1 {
			cfg.IsAdmin = m[1] == "true"
		}
		return cfg
	}

	parsed := gjson.Parse(raw)
	cfg.IsAuthenticated = parsed.Get("isAuthenticated").Bool()
	cfg.IsAdmin = parsed.Get("isAdmin").Bool()

	if pref := parsed.Get("tablePref"); pref.IsObject() {
		filters := pref.Get("filters")
		filtersRaw := filters.String()
		if filters.IsObject() {
			filtersRaw = filters.Raw
		}
		cfg.TablePref = &viewstate.ServerPref{
			SortIdx: int(pref.Get("sort_idx").Int()),
			SortDir: pref.Get("sort_dir").String(),
			Filters: filtersRaw,
		}
	}

	lang := parsed.Get("lang")
	cfg.Lang = cfg.Lang.Merge(config.Lang{
		SelectAtLeastOne:   lang.Get("selectAtLeastOne").String(),
		EnterComment:       lang.Get("enterComment").String(),
		EnterReason:        lang.Get("enterReason").String(),
		ReasonRequired:     lang.Get("reasonRequired").String(),
		DenyWithReason:     lang.Get("denyWithReason").String(),
		ApproveWithComment: lang.Get("approveWithComment").String(),
	})
	return cfg
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
