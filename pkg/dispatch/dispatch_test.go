package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Action  Action
	ID      string
	Subsidy string
	Comment *string
}

type fakeRemote struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]bool
}

func (f *fakeRemote) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.fail[c.ID] {
		return errors.New("server error")
	}
	return nil
}

func (f *fakeRemote) Approve(_ context.Context, id, subsidy string, comment *string) error {
	return f.record(call{Action: ActionApprove, ID: id, Subsidy: subsidy, Comment: comment})
}

func (f *fakeRemote) Deny(_ context.Context, id, subsidy, comment string) error {
	return f.record(call{Action: ActionDeny, ID: id, Subsidy: subsidy, Comment: &comment})
}

func (f *fakeRemote) ForceFit(_ context.Context, contractID, fitID string) error {
	return f.record(call{Action: ActionForceFit, ID: contractID, Subsidy: fitID})
}

type subsidies map[string]decimal.Decimal

func (s subsidies) SubsidyAmount(id string) (decimal.Decimal, bool) {
	d, ok := s[id]
	return d, ok
}

type countingReloader struct{ n int }

func (r *countingReloader) Reload(context.Context) error {
	r.n++
	return nil
}

type scriptedAnnotator struct {
	answer Annotation
	ok     bool
	seen   []AnnotationRequest
}

func (a *scriptedAnnotator) Annotate(_ context.Context, req AnnotationRequest) (Annotation, bool, error) {
	a.seen = append(a.seen, req)
	return a.answer, a.ok, nil
}

func newDispatcher(rem *fakeRemote, rel *countingReloader, ann Annotator) *Dispatcher {
	return New(Options{
		Remote:      rem,
		Subsidies:   subsidies{"1": decimal.NewFromInt(1500000), "2": decimal.RequireFromString("250000.5")},
		Reloader:    rel,
		Annotator:   ann,
		Lang:        config.DefaultLang(),
		Concurrency: 2,
	})
}

func TestBulkEmptySelectionMakesNoCalls(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, nil)
	ctx := context.Background()

	for name, run := range map[string]func() error{
		"approve":              func() error { return d.BulkApprove(ctx, nil) },
		"approve with comment": func() error { return d.BulkApproveWithComment(ctx, []string{}, "hi") },
		"deny":                 func() error { return d.BulkDeny(ctx, nil, "bad") },
	} {
		t.Run(name, func(t *testing.T) {
			err := run()
			require.ErrorIs(t, err, ErrEmptySelection)
			assert.True(t, common.IsValidation(err))
			assert.Equal(t, config.DefaultLang().SelectAtLeastOne, err.Error())
		})
	}
	assert.Empty(t, rem.calls)
	assert.Zero(t, rel.n)
}

func TestBulkApproveSettlesAllThenReloadsOnce(t *testing.T) {
	rem := &fakeRemote{fail: map[string]bool{"2": true}}
	rel := &countingReloader{}
	var mu sync.Mutex
	var outcomes []Outcome
	d := New(Options{
		Remote:      rem,
		Subsidies:   subsidies{"1": decimal.NewFromInt(1500000), "2": decimal.RequireFromString("250000.5")},
		Reloader:    rel,
		Concurrency: 2,
		OnOutcome: func(o Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	})

	require.NoError(t, d.BulkApprove(context.Background(), []string{"1", "2", "3"}))
	assert.Equal(t, 1, rel.n)
	require.Len(t, rem.calls, 3)
	assert.Len(t, outcomes, 3)

	bySubsidy := map[string]string{}
	for _, c := range rem.calls {
		bySubsidy[c.ID] = c.Subsidy
		assert.Nil(t, c.Comment)
	}
	assert.Equal(t, map[string]string{"1": "1500000", "2": "250000.5", "3": ""}, bySubsidy)

	failed := 0
	for _, o := range outcomes {
		assert.True(t, o.Bulk)
		if o.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.False(t, d.Busy())
}

func TestBulkDeny(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, nil)
	ctx := context.Background()

	err := d.BulkDeny(ctx, []string{"1"}, "   ")
	require.ErrorIs(t, err, ErrReasonRequired)
	assert.Empty(t, rem.calls)

	require.NoError(t, d.BulkDeny(ctx, []string{"2", "1"}, "  wrong station "))
	require.Len(t, rem.calls, 2)
	ids := []string{rem.calls[0].ID, rem.calls[1].ID}
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2"}, ids)
	for _, c := range rem.calls {
		assert.Equal(t, "wrong station", *c.Comment)
	}
	assert.Equal(t, 1, rel.n)
}

func TestBulkApproveWithCommentTrims(t *testing.T) {
	rem := &fakeRemote{}
	d := newDispatcher(rem, &countingReloader{}, nil)
	require.NoError(t, d.BulkApproveWithComment(context.Background(), []string{"1"}, "  ok  "))
	require.Len(t, rem.calls, 1)
	assert.Equal(t, "ok", *rem.calls[0].Comment)
}

func TestSingleApproveReloadsEvenOnFailure(t *testing.T) {
	rem := &fakeRemote{fail: map[string]bool{"1": true}}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, nil)

	require.NoError(t, d.Approve(context.Background(), "1", decimal.NewFromInt(42)))
	require.Len(t, rem.calls, 1)
	assert.Equal(t, "42", rem.calls[0].Subsidy)
	assert.Equal(t, 1, rel.n)

	require.NoError(t, d.ApproveCurrent(context.Background(), "2"))
	assert.Equal(t, "250000.5", rem.calls[1].Subsidy)
	assert.Equal(t, 2, rel.n)
}

func TestApproveWithCommentDialog(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	ann := &scriptedAnnotator{ok: true, answer: Annotation{Subsidy: decimal.NewFromInt(900), HasSubsidy: true, Comment: "thanks"}}
	d := newDispatcher(rem, rel, ann)

	require.NoError(t, d.ApproveWithComment(context.Background(), "1"))
	require.Len(t, ann.seen, 1)
	assert.Equal(t, "1", ann.seen[0].ID)
	assert.True(t, ann.seen[0].Subsidy.Equal(decimal.NewFromInt(1500000)))
	assert.Equal(t, config.DefaultLang().ApproveWithComment, ann.seen[0].Title)

	require.Len(t, rem.calls, 1)
	assert.Equal(t, "900", rem.calls[0].Subsidy)
	assert.Equal(t, "thanks", *rem.calls[0].Comment)
	assert.Equal(t, 1, rel.n)
}

func TestCancelledDialogMakesNoCall(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, &scriptedAnnotator{ok: false})

	assert.ErrorIs(t, d.Deny(context.Background(), "1"), ErrCancelled)
	assert.ErrorIs(t, d.ApproveWithComment(context.Background(), "1"), ErrCancelled)
	assert.Empty(t, rem.calls)
	assert.Zero(t, rel.n)
}

func TestDenyRequiresReason(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, &scriptedAnnotator{ok: true, answer: Annotation{Comment: "  "}})

	err := d.Deny(context.Background(), "1")
	require.ErrorIs(t, err, ErrReasonRequired)
	assert.Equal(t, config.DefaultLang().ReasonRequired, err.Error())
	assert.Empty(t, rem.calls)
}

func TestForceFitAlwaysReloads(t *testing.T) {
	rem := &fakeRemote{fail: map[string]bool{"5": true}}
	rel := &countingReloader{}
	d := newDispatcher(rem, rel, nil)
	require.NoError(t, d.ForceFit(context.Background(), "5", ""))
	assert.Equal(t, 1, rel.n)
	assert.Equal(t, ActionForceFit, rem.calls[0].Action)
}

func TestBusySignal(t *testing.T) {
	var transitions []bool
	rem := &fakeRemote{}
	d := New(Options{Remote: rem, OnBusy: func(b bool) { transitions = append(transitions, b) }})
	require.NoError(t, d.Approve(context.Background(), "1", decimal.Zero))
	assert.Equal(t, []bool{true, false}, transitions)
	assert.False(t, d.Busy())
}

func TestObserveOutcomeAndTextfile(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("deny", "bulk", "error"))
	ObserveOutcome(Outcome{Action: ActionDeny, Bulk: true, Err: errors.New("x")})
	assert.Equal(t, before+1, testutil.ToFloat64(actionsTotal.WithLabelValues("deny", "bulk", "error")))

	path := filepath.Join(t.TempDir(), "subsidyctl.prom")
	require.NoError(t, WriteTextfile(path))
	assert.FileExists(t, path)
}
