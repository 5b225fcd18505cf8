// Package config holds the configuration injected into every component:
// endpoint paths, capability flags and the localized messages shown for
// validation failures.
package config

import (
	"strings"
	"time"

	"github.com/aasubsidy/subsidyctl/pkg/whttp"
	"github.com/spf13/viper"
)

// Endpoints are paths relative to the server base URL. Paths containing
// "{id}" are templates filled with a contract id.
type Endpoints struct {
	ReviewPage     string `mapstructure:"review_page"`
	SummaryPage    string `mapstructure:"summary_page"`
	PaymentsPage   string `mapstructure:"payments_page"`
	Approve        string `mapstructure:"approve"`
	Deny           string `mapstructure:"deny"`
	ContractItems  string `mapstructure:"contract_items"`
	ForceFit       string `mapstructure:"force_fit"`
	SaveTablePref  string `mapstructure:"save_table_pref"`
	SaveClaim      string `mapstructure:"save_claim"`
	DeleteClaim    string `mapstructure:"delete_claim"`
	MarkPaid       string `mapstructure:"mark_paid"`
	LocationSearch string `mapstructure:"location_search"`
}

// DefaultEndpoints mirrors the routes of the subsidy application.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ReviewPage:     "contract/review/",
		SummaryPage:    "",
		PaymentsPage:   "contract/payments/",
		Approve:        "contract/{id}/approve/",
		Deny:           "contract/{id}/deny/",
		ContractItems:  "contract/{id}/items/",
		ForceFit:       "contract/{id}/force-fit/",
		SaveTablePref:  "contract/review/table-pref/save/",
		SaveClaim:      "contract/summary/claim/",
		DeleteClaim:    "contract/summary/claim/delete/",
		MarkPaid:       "contract/payments/mark-paid/",
		LocationSearch: "location_search/",
	}
}

// Expand fills the {id} placeholder of an endpoint template.
func Expand(template, id string) string {
	return strings.ReplaceAll(template, "{id}", id)
}

// Lang holds user-facing messages. Pages may override them at render time.
type Lang struct {
	SelectAtLeastOne   string `mapstructure:"select_at_least_one"`
	EnterComment       string `mapstructure:"enter_comment"`
	EnterReason        string `mapstructure:"enter_reason"`
	ReasonRequired     string `mapstructure:"reason_required"`
	DenyWithReason     string `mapstructure:"deny_with_reason"`
	ApproveWithComment string `mapstructure:"approve_with_comment"`
	InvalidQuantity    string `mapstructure:"invalid_quantity"`
	NothingToClear     string `mapstructure:"nothing_to_clear"`
	ConfirmAdminClear  string `mapstructure:"confirm_admin_clear"`
	MarkPaidFailed     string `mapstructure:"mark_paid_failed"`
}

func DefaultLang() Lang {
	return Lang{
		SelectAtLeastOne:   "Select at least one contract.",
		EnterComment:       "Enter a comment (optional):",
		EnterReason:        "Enter a reason for denial:",
		ReasonRequired:     "A reason is required to deny.",
		DenyWithReason:     "Deny with reason",
		ApproveWithComment: "Approve with comment",
		InvalidQuantity:    "Please enter a valid number.",
		NothingToClear:     "You have no claim on this fit.",
		ConfirmAdminClear:  "Remove the claim of %s on %s?",
		MarkPaidFailed:     "Failed to mark as paid.",
	}
}

// Merge overrides every non-empty message of o onto l.
func (l Lang) Merge(o Lang) Lang {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return b
		}
		return a
	}
	return Lang{
		SelectAtLeastOne:   pick(l.SelectAtLeastOne, o.SelectAtLeastOne),
		EnterComment:       pick(l.EnterComment, o.EnterComment),
		EnterReason:        pick(l.EnterReason, o.EnterReason),
		ReasonRequired:     pick(l.ReasonRequired, o.ReasonRequired),
		DenyWithReason:     pick(l.DenyWithReason, o.DenyWithReason),
		ApproveWithComment: pick(l.ApproveWithComment, o.ApproveWithComment),
		InvalidQuantity:    pick(l.InvalidQuantity, o.InvalidQuantity),
		NothingToClear:     pick(l.NothingToClear, o.NothingToClear),
		ConfirmAdminClear:  pick(l.ConfirmAdminClear, o.ConfirmAdminClear),
		MarkPaidFailed:     pick(l.MarkPaidFailed, o.MarkPaidFailed),
	}
}

// Config is passed to each component at construction.
type Config struct {
	BaseURL       string
	SessionCookie string
	CSRFCookie    string
	Endpoints     Endpoints
	Lang          Lang

	IsAuthenticated bool
	IsAdmin         bool

	Retries     int
	Timeout     time.Duration
	Concurrency int
	DBPath      string
}

const DefaultConcurrency = 5

// SetDefaults registers every key with viper so a freshly written config file lists them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.session_cookie", "")
	v.SetDefault("server.csrf_cookie", "csrftoken")

	e := DefaultEndpoints()
	v.SetDefault("endpoints.review_page", e.ReviewPage)
	v.SetDefault("endpoints.summary_page", e.SummaryPage)
	v.SetDefault("endpoints.payments_page", e.PaymentsPage)
	v.SetDefault("endpoints.approve", e.Approve)
	v.SetDefault("endpoints.deny", e.Deny)
	v.SetDefault("endpoints.contract_items", e.ContractItems)
	v.SetDefault("endpoints.force_fit", e.ForceFit)
	v.SetDefault("endpoints.save_table_pref", e.SaveTablePref)
	v.SetDefault("endpoints.save_claim", e.SaveClaim)
	v.SetDefault("endpoints.delete_claim", e.DeleteClaim)
	v.SetDefault("endpoints.mark_paid", e.MarkPaid)
	v.SetDefault("endpoints.location_search", e.LocationSearch)

	l := DefaultLang()
	v.SetDefault("lang.select_at_least_one", l.SelectAtLeastOne)
	v.SetDefault("lang.enter_comment", l.EnterComment)
	v.SetDefault("lang.enter_reason", l.EnterReason)
	v.SetDefault("lang.reason_required", l.ReasonRequired)
	v.SetDefault("lang.deny_with_reason", l.DenyWithReason)
	v.SetDefault("lang.approve_with_comment", l.ApproveWithComment)
	v.SetDefault("lang.invalid_quantity", l.InvalidQuantity)
	v.SetDefault("lang.nothing_to_clear", l.NothingToClear)
	v.SetDefault("lang.confirm_admin_clear", l.ConfirmAdminClear)
	v.SetDefault("lang.mark_paid_failed", l.MarkPaidFailed)

	v.SetDefault("http.retries", whttp.DEFAULT_RETRIES)
	v.SetDefault("http.timeout", "0s")
	v.SetDefault("bulk.concurrency", DefaultConcurrency)
	v.SetDefault("db.path", "")
}

// FromViper builds a Config from the loaded viper keys. Capability flags are
// left false; they come from the page snapshot.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:       strings.TrimSpace(v.GetString("server.base_url")),
		SessionCookie: v.GetString("server.session_cookie"),
		CSRFCookie:    v.GetString("server.csrf_cookie"),
		Endpoints:     DefaultEndpoints(),
		Lang:          DefaultLang(),
		Retries:       v.GetInt("http.retries"),
		Timeout:       v.GetDuration("http.timeout"),
		Concurrency:   v.GetInt("bulk.concurrency"),
		DBPath:        v.GetString("db.path"),
	}
	if err := v.UnmarshalKey("endpoints", &cfg.Endpoints); err != nil {
		return cfg, err
	}
	var lang Lang
	if err := v.UnmarshalKey("lang", &lang); err != nil {
		return cfg, err
	}
	cfg.Lang = cfg.Lang.Merge(lang)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return cfg, nil
}
