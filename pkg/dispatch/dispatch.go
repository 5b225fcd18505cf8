// Package dispatch sends review actions (approve, deny, force fit) for one
// contract or for a bulk selection and refreshes the page snapshot afterwards.
//
// Remote failures of review actions are not reported to the caller: a single
// action logs a warning, a bulk action logs each failure at debug level. In
// both cases the snapshot is reloaded so the caller sees the server's state.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptySelection = common.ErrEmptySelection
	ErrReasonRequired = common.ErrReasonRequired
	ErrCancelled      = common.ErrCancelled
)

type Action string

const (
	ActionApprove            Action = "approve"
	ActionApproveWithComment Action = "approve_with_comment"
	ActionDeny               Action = "deny"
	ActionForceFit           Action = "force_fit"
)

// Remote posts review actions.
type Remote interface {
	Approve(ctx context.Context, id, subsidy string, comment *string) error
	Deny(ctx context.Context, id, subsidy, comment string) error
	ForceFit(ctx context.Context, contractID, fitID string) error
}

// SubsidySource returns the current subsidy amount entered for a contract.
type SubsidySource interface {
	SubsidyAmount(id string) (decimal.Decimal, bool)
}

type Reloader interface {
	Reload(ctx context.Context) error
}

// AnnotationRequest pre-fills the comment or reason dialog.
type AnnotationRequest struct {
	Action     Action
	ID         string
	Subsidy    decimal.Decimal
	HasSubsidy bool
	Title      string
}

type Annotation struct {
	Subsidy    decimal.Decimal
	HasSubsidy bool
	Comment    string
}

// Annotator asks for a comment or reason. ok=false means the dialog was cancelled.
type Annotator interface {
	Annotate(ctx context.Context, req AnnotationRequest) (a Annotation, ok bool, err error)
}

// Outcome is reported once per remote call.
type Outcome struct {
	Action Action
	ID     string
	Bulk   bool
	Err    error
}

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

type Options struct {
	Remote      Remote
	Subsidies   SubsidySource
	Reloader    Reloader
	Annotator   Annotator
	Lang        config.Lang
	Concurrency int
	Log         Logger
	// OnOutcome is called from worker goroutines; it must be safe for concurrent use.
	OnOutcome func(Outcome)
	// OnBusy is called when the busy counter goes from 0 to 1 and back.
	OnBusy func(busy bool)
}

type Dispatcher struct {
	opts     Options
	log      Logger
	validate *validator.Validate
	busy     int32
}

func New(opts Options) *Dispatcher {
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	return &Dispatcher{opts: opts, log: log, validate: validator.New()}
}

type bulkRequest struct {
	IDs []string `validate:"min=1,dive,required"`
}

type denyRequest struct {
	Reason string `validate:"required"`
}

// Busy reports whether any dispatched operation is outstanding.
func (d *Dispatcher) Busy() bool {
	return atomic.LoadInt32(&d.busy) > 0
}

func (d *Dispatcher) begin() func() {
	if atomic.AddInt32(&d.busy, 1) == 1 && d.opts.OnBusy != nil {
		d.opts.OnBusy(true)
	}
	return func() {
		if atomic.AddInt32(&d.busy, -1) == 0 && d.opts.OnBusy != nil {
			d.opts.OnBusy(false)
		}
	}
}

func (d *Dispatcher) subsidy(id string) (decimal.Decimal, bool) {
	if d.opts.Subsidies == nil {
		return decimal.Zero, false
	}
	return d.opts.Subsidies.SubsidyAmount(id)
}

func formatSubsidy(amount decimal.Decimal, ok bool) string {
	if !ok {
		return ""
	}
	return amount.String()
}

func (d *Dispatcher) report(o Outcome) {
	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(o)
	}
}

func (d *Dispatcher) reload(ctx context.Context) error {
	if d.opts.Reloader == nil {
		return nil
	}
	return d.opts.Reloader.Reload(ctx)
}

// single runs one remote call, logs a failure and always reloads.
func (d *Dispatcher) single(ctx context.Context, action Action, id string, call func() error) error {
	done := d.begin()
	defer done()

	err := call()
	d.report(Outcome{Action: action, ID: id, Err: err})
	if err != nil {
		d.log.Warnf("%s of contract %s failed: %v", action, id, err)
	} else {
		d.log.Infof("%s of contract %s sent", action, id)
	}
	return d.reload(ctx)
}

// Approve approves one contract with the given subsidy amount.
func (d *Dispatcher) Approve(ctx context.Context, id string, subsidy decimal.Decimal) error {
	return d.single(ctx, ActionApprove, id, func() error {
		return d.opts.Remote.Approve(ctx, id, subsidy.String(), nil)
	})
}

// ApproveCurrent approves one contract with the subsidy amount currently entered for it.
func (d *Dispatcher) ApproveCurrent(ctx context.Context, id string) error {
	amount, ok := d.subsidy(id)
	return d.single(ctx, ActionApprove, id, func() error {
		return d.opts.Remote.Approve(ctx, id, formatSubsidy(amount, ok), nil)
	})
}

func (d *Dispatcher) annotate(ctx context.Context, action Action, id, title string) (Annotation, error) {
	if d.opts.Annotator == nil {
		return Annotation{}, ErrCancelled
	}
	amount, has := d.subsidy(id)
	a, ok, err := d.opts.Annotator.Annotate(ctx, AnnotationRequest{Action: action, ID: id, Subsidy: amount, HasSubsidy: has, Title: title})
	if err != nil {
		return Annotation{}, err
	}
	if !ok {
		return Annotation{}, ErrCancelled
	}
	return a, nil
}

// ApproveWithComment asks for a comment, then approves. A cancelled dialog sends nothing.
func (d *Dispatcher) ApproveWithComment(ctx context.Context, id string) error {
	a, err := d.annotate(ctx, ActionApproveWithComment, id, d.opts.Lang.ApproveWithComment)
	if err != nil {
		return err
	}
	comment := a.Comment
	return d.single(ctx, ActionApproveWithComment, id, func() error {
		return d.opts.Remote.Approve(ctx, id, formatSubsidy(a.Subsidy, a.HasSubsidy), &comment)
	})
}

// Deny asks for a reason, then denies. The reason must not be blank.
func (d *Dispatcher) Deny(ctx context.Context, id string) error {
	a, err := d.annotate(ctx, ActionDeny, id, d.opts.Lang.DenyWithReason)
	if err != nil {
		return err
	}
	reason := strings.TrimSpace(a.Comment)
	if err := d.validate.Struct(denyRequest{Reason: reason}); err != nil {
		return common.Invalid(ErrReasonRequired, d.opts.Lang.ReasonRequired)
	}
	return d.single(ctx, ActionDeny, id, func() error {
		return d.opts.Remote.Deny(ctx, id, formatSubsidy(a.Subsidy, a.HasSubsidy), reason)
	})
}

// ForceFit overrides the doctrine fit matched to a contract; an empty fitID clears it.
func (d *Dispatcher) ForceFit(ctx context.Context, contractID, fitID string) error {
	return d.single(ctx, ActionForceFit, contractID, func() error {
		return d.opts.Remote.ForceFit(ctx, contractID, fitID)
	})
}

func (d *Dispatcher) checkSelection(ids []string) error {
	if err := d.validate.Struct(bulkRequest{IDs: ids}); err != nil {
		return common.Invalid(ErrEmptySelection, d.opts.Lang.SelectAtLeastOne)
	}
	return nil
}

// BulkApprove approves every id with its own subsidy amount.
func (d *Dispatcher) BulkApprove(ctx context.Context, ids []string) error {
	if err := d.checkSelection(ids); err != nil {
		return err
	}
	return d.bulk(ctx, ActionApprove, ids, func(id string) error {
		amount, ok := d.subsidy(id)
		return d.opts.Remote.Approve(ctx, id, formatSubsidy(amount, ok), nil)
	})
}

// BulkApproveWithComment approves every id with one shared, trimmed comment.
func (d *Dispatcher) BulkApproveWithComment(ctx context.Context, ids []string, comment string) error {
	if err := d.checkSelection(ids); err != nil {
		return err
	}
	comment = strings.TrimSpace(comment)
	return d.bulk(ctx, ActionApproveWithComment, ids, func(id string) error {
		amount, ok := d.subsidy(id)
		return d.opts.Remote.Approve(ctx, id, formatSubsidy(amount, ok), &comment)
	})
}

// BulkDeny denies every id with one shared reason, which must not be blank.
func (d *Dispatcher) BulkDeny(ctx context.Context, ids []string, reason string) error {
	if err := d.checkSelection(ids); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if err := d.validate.Struct(denyRequest{Reason: reason}); err != nil {
		return common.Invalid(ErrReasonRequired, d.opts.Lang.ReasonRequired)
	}
	return d.bulk(ctx, ActionDeny, ids, func(id string) error {
		amount, ok := d.subsidy(id)
		return d.opts.Remote.Deny(ctx, id, formatSubsidy(amount, ok), reason)
	})
}

// bulk sends one call per id through a bounded worker pool, waits for all
// of them regardless of failures, then reloads.
func (d *Dispatcher) bulk(ctx context.Context, action Action, ids []string, call func(id string) error) error {
	done := d.begin()
	defer done()

	idChan := make(chan string, len(ids))

	var mu sync.Mutex
	failed := 0

	workers := d.opts.Concurrency
	if workers > len(ids) {
		workers = len(ids)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				err := call(id)
				d.report(Outcome{Action: action, ID: id, Bulk: true, Err: err})
				if err != nil {
					d.log.Debugf("bulk %s of contract %s failed: %v", action, id, err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}

	for _, id := range ids {
		idChan <- id
	}
	close(idChan)
	wg.Wait()

	d.log.Infof("bulk %s sent for %d contracts", action, len(ids))
	if failed > 0 {
		d.log.Debugf("bulk %s: %d of %d calls failed", action, failed, len(ids))
	}
	return d.reload(ctx)
}
