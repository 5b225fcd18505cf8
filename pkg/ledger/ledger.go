// Package ledger manages claims on doctrine fits: how many of a needed fit a
// member promises to deliver. Entries are read from the page snapshot each
// time a claim dialog opens and are never cached beyond that.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrInvalidQuantity = common.ErrInvalidQuantity
	ErrNothingToClear  = common.ErrNothingToClear
	ErrNotAdmin        = common.ErrNotAdmin
	ErrCancelled       = common.ErrCancelled

	ErrUnknownFit      = errors.New("unknown fit")
	ErrUnknownClaimant = errors.New("no claim by that member on this fit")

	// ErrNoClaimantIdentities means the page listed claimants by name only.
	ErrNoClaimantIdentities = errors.New("claimant member ids are not available")
)

// Claimant is a member other than the caller holding a claim.
type Claimant struct {
	Identity    int
	DisplayName string
	Quantity    int
}

// Entry is the claim state of one fit. ClaimedTotal is expected to equal
// ClaimedByCaller plus the sum of Others but this is not enforced.
type Entry struct {
	FitID           int
	FitName         string
	ContractID      string
	Needed          int
	Available       int
	ClaimedTotal    int
	ClaimedByCaller int
	Others          []Claimant
	// ClaimantsText is the server-rendered "Name (qty), ..." summary.
	ClaimantsText string
}

// ClaimantsLabel returns the server summary, or one built from Others.
func (e Entry) ClaimantsLabel() string {
	if strings.TrimSpace(e.ClaimantsText) != "" {
		return strings.TrimSpace(e.ClaimantsText)
	}
	parts := make([]string, 0, len(e.Others))
	for _, c := range e.Others {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.DisplayName, c.Quantity))
	}
	return strings.Join(parts, ", ")
}

// Source looks up entries in the current snapshot.
type Source interface {
	ClaimEntry(fitID int) (Entry, bool)
}

type Remote interface {
	SaveClaim(ctx context.Context, fitID, quantity int) error
	DeleteClaim(ctx context.Context, fitID, userID int) (bool, error)
}

type Reloader interface {
	Reload(ctx context.Context) error
}

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Options struct {
	Source    Source
	Remote    Remote
	Reloader  Reloader
	Confirmer Confirmer
	IsAdmin   bool
	Lang      config.Lang
	// OnOutcome is called after every remote call.
	OnOutcome func(action string, fitID int, err error)
}

type Ledger struct {
	opts     Options
	validate *validator.Validate
	printer  *message.Printer
}

func New(opts Options) *Ledger {
	return &Ledger{opts: opts, validate: validator.New(), printer: message.NewPrinter(language.English)}
}

// Dialog is what the claim dialog shows when opened.
type Dialog struct {
	Entry    Entry
	Prefill  string
	Hint     string
	CanClear bool
}

// Open reads an entry from the snapshot and builds the dialog.
func (l *Ledger) Open(fitID int) (Dialog, error) {
	e, ok := l.lookup(fitID)
	if !ok {
		return Dialog{}, fmt.Errorf("%w: %d", ErrUnknownFit, fitID)
	}
	d := Dialog{Entry: e, Hint: l.Hint(e), CanClear: e.ClaimedByCaller > 0}
	if e.ClaimedByCaller > 0 {
		d.Prefill = strconv.Itoa(e.ClaimedByCaller)
	}
	return d, nil
}

func (l *Ledger) lookup(fitID int) (Entry, bool) {
	if l.opts.Source == nil {
		return Entry{}, false
	}
	return l.opts.Source.ClaimEntry(fitID)
}

// Hint renders the capacity summary with grouped numbers.
func (l *Ledger) Hint(e Entry) string {
	var b strings.Builder
	b.WriteString(l.printer.Sprintf("· Needed: %d\n", e.Needed))
	b.WriteString(l.printer.Sprintf("· Available: %d\n", e.Available))
	b.WriteString(l.printer.Sprintf("· Claimed (all): %d\n", e.ClaimedTotal))
	b.WriteString(l.printer.Sprintf("· Claimed by You: %d\n", e.ClaimedByCaller))
	b.WriteString("· Claimed by: " + e.ClaimantsLabel())
	return b.String()
}

type claimRequest struct {
	FitID    int `validate:"gt=0"`
	Quantity int `validate:"gt=0"`
}

func (l *Ledger) invalidQuantity() error {
	return common.Invalid(ErrInvalidQuantity, l.opts.Lang.InvalidQuantity)
}

// ParseQuantity reads leading digits the way a number input is read:
// "5", " 5 ", "5 ships" give 5; anything without a leading integer is invalid.
func ParseQuantity(s string) (int, error) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, ErrInvalidQuantity
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, ErrInvalidQuantity
	}
	return n, nil
}

func (l *Ledger) report(action string, fitID int, err error) {
	if l.opts.OnOutcome != nil {
		l.opts.OnOutcome(action, fitID, err)
	}
}

func (l *Ledger) reload(ctx context.Context) error {
	if l.opts.Reloader == nil {
		return nil
	}
	return l.opts.Reloader.Reload(ctx)
}

// Save sets the caller's claim. Quantity must be a positive integer. On a
// server failure the error is returned and nothing is reloaded.
func (l *Ledger) Save(ctx context.Context, fitID, quantity int) error {
	if err := l.validate.Struct(claimRequest{FitID: fitID, Quantity: quantity}); err != nil {
		return l.invalidQuantity()
	}
	err := l.opts.Remote.SaveClaim(ctx, fitID, quantity)
	l.report("save_claim", fitID, err)
	if err != nil {
		return err
	}
	return l.reload(ctx)
}

// Clear removes the caller's claim. Only allowed when the caller holds one.
func (l *Ledger) Clear(ctx context.Context, fitID int) error {
	e, ok := l.lookup(fitID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFit, fitID)
	}
	if e.ClaimedByCaller <= 0 {
		return common.Invalid(ErrNothingToClear, l.opts.Lang.NothingToClear)
	}
	_, err := l.opts.Remote.DeleteClaim(ctx, fitID, 0)
	l.report("delete_claim", fitID, err)
	if err != nil {
		return err
	}
	return l.reload(ctx)
}

// AdminClear removes another member's claim after confirmation. The server
// still decides whether the caller may do this.
func (l *Ledger) AdminClear(ctx context.Context, fitID, identity int) error {
	if !l.opts.IsAdmin {
		return common.Invalid(ErrNotAdmin, ErrNotAdmin.Error())
	}
	e, ok := l.lookup(fitID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFit, fitID)
	}
	var target *Claimant
	identified := false
	for i := range e.Others {
		if e.Others[i].Identity == 0 {
			continue
		}
		identified = true
		if e.Others[i].Identity == identity {
			target = &e.Others[i]
			break
		}
	}
	if target == nil {
		if len(e.Others) > 0 && !identified {
			return fmt.Errorf("%w: fit %d", ErrNoClaimantIdentities, fitID)
		}
		return fmt.Errorf("%w: %d", ErrUnknownClaimant, identity)
	}

	if l.opts.Confirmer == nil {
		return ErrCancelled
	}
	prompt := fmt.Sprintf(l.opts.Lang.ConfirmAdminClear, target.DisplayName, e.FitName)
	confirmed, err := l.opts.Confirmer.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrCancelled
	}

	_, err = l.opts.Remote.DeleteClaim(ctx, fitID, identity)
	l.report("admin_delete_claim", fitID, err)
	if err != nil {
		return err
	}
	return l.reload(ctx)
}
