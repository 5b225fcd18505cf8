package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot map[int]Entry

func (s snapshot) ClaimEntry(fitID int) (Entry, bool) {
	e, ok := s[fitID]
	return e, ok
}

type claimCall struct {
	Kind     string
	FitID    int
	Quantity int
	UserID   int
}

type fakeRemote struct {
	calls []claimCall
	err   error
}

func (f *fakeRemote) SaveClaim(_ context.Context, fitID, quantity int) error {
	f.calls = append(f.calls, claimCall{Kind: "save", FitID: fitID, Quantity: quantity})
	return f.err
}

func (f *fakeRemote) DeleteClaim(_ context.Context, fitID, userID int) (bool, error) {
	f.calls = append(f.calls, claimCall{Kind: "delete", FitID: fitID, UserID: userID})
	return f.err == nil, f.err
}

type countingReloader struct{ n int }

func (r *countingReloader) Reload(context.Context) error {
	r.n++
	return nil
}

type answer struct {
	ok      bool
	prompts []string
}

func (a *answer) Confirm(_ context.Context, prompt string) (bool, error) {
	a.prompts = append(a.prompts, prompt)
	return a.ok, nil
}

var fits = snapshot{
	3: {FitID: 3, FitName: "Harbinger Navy", Needed: 12000, Available: 4, ClaimedTotal: 7, ClaimedByCaller: 5,
		Others: []Claimant{{Identity: 42, DisplayName: "Pilot A", Quantity: 2}}},
	4: {FitID: 4, FitName: "Scimitar", Needed: 2, ClaimedTotal: 1, Others: []Claimant{{Identity: 8, DisplayName: "Pilot B", Quantity: 1}}},
	5: {FitID: 5, FitName: "Guardian", Needed: 3, ClaimedTotal: 2, Others: []Claimant{{DisplayName: "Pilot C", Quantity: 2}}},
}

func newLedger(rem *fakeRemote, rel *countingReloader, conf Confirmer, admin bool) *Ledger {
	return New(Options{Source: fits, Remote: rem, Reloader: rel, Confirmer: conf, IsAdmin: admin, Lang: config.DefaultLang()})
}

func TestSaveRejectsNonPositive(t *testing.T) {
	for _, q := range []int{0, -3} {
		rem := &fakeRemote{}
		rel := &countingReloader{}
		err := newLedger(rem, rel, nil, false).Save(context.Background(), 3, q)
		require.ErrorIs(t, err, ErrInvalidQuantity)
		assert.True(t, common.IsValidation(err))
		assert.Equal(t, "Please enter a valid number.", err.Error())
		assert.Empty(t, rem.calls)
		assert.Zero(t, rel.n)
	}
}

func TestSaveSendsOneCall(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	var outcomes []string
	l := New(Options{Source: fits, Remote: rem, Reloader: rel, Lang: config.DefaultLang(),
		OnOutcome: func(action string, _ int, _ error) { outcomes = append(outcomes, action) }})

	require.NoError(t, l.Save(context.Background(), 3, 5))
	assert.Equal(t, []claimCall{{Kind: "save", FitID: 3, Quantity: 5}}, rem.calls)
	assert.Equal(t, 1, rel.n)
	assert.Equal(t, []string{"save_claim"}, outcomes)
}

func TestSaveFailureDoesNotReload(t *testing.T) {
	rem := &fakeRemote{err: errors.New("invalid_params")}
	rel := &countingReloader{}
	err := newLedger(rem, rel, nil, false).Save(context.Background(), 3, 5)
	assert.EqualError(t, err, "invalid_params")
	assert.Zero(t, rel.n)
}

func TestOpen(t *testing.T) {
	l := newLedger(&fakeRemote{}, &countingReloader{}, nil, false)

	d, err := l.Open(3)
	require.NoError(t, err)
	assert.Equal(t, "5", d.Prefill)
	assert.True(t, d.CanClear)
	assert.Contains(t, d.Hint, "· Needed: 12,000")
	assert.Contains(t, d.Hint, "· Claimed by You: 5")
	assert.Contains(t, d.Hint, "· Claimed by: Pilot A (2)")

	d, err = l.Open(4)
	require.NoError(t, err)
	assert.Equal(t, "", d.Prefill)
	assert.False(t, d.CanClear)

	_, err = l.Open(99)
	assert.ErrorIs(t, err, ErrUnknownFit)
}

func TestClear(t *testing.T) {
	rem := &fakeRemote{}
	rel := &countingReloader{}
	l := newLedger(rem, rel, nil, false)

	err := l.Clear(context.Background(), 4)
	require.ErrorIs(t, err, ErrNothingToClear)
	assert.Empty(t, rem.calls)

	require.NoError(t, l.Clear(context.Background(), 3))
	assert.Equal(t, []claimCall{{Kind: "delete", FitID: 3}}, rem.calls)
	assert.Equal(t, 1, rel.n)
}

func TestAdminClear(t *testing.T) {
	ctx := context.Background()

	t.Run("not admin", func(t *testing.T) {
		rem := &fakeRemote{}
		err := newLedger(rem, &countingReloader{}, &answer{ok: true}, false).AdminClear(ctx, 3, 42)
		require.ErrorIs(t, err, ErrNotAdmin)
		assert.Empty(t, rem.calls)
	})

	t.Run("unknown claimant", func(t *testing.T) {
		rem := &fakeRemote{}
		err := newLedger(rem, &countingReloader{}, &answer{ok: true}, true).AdminClear(ctx, 3, 7)
		require.ErrorIs(t, err, ErrUnknownClaimant)
		assert.Empty(t, rem.calls)
	})

	t.Run("claimants listed by name only", func(t *testing.T) {
		rem := &fakeRemote{}
		conf := &answer{ok: true}
		for _, member := range []int{0, 42} {
			err := newLedger(rem, &countingReloader{}, conf, true).AdminClear(ctx, 5, member)
			require.ErrorIs(t, err, ErrNoClaimantIdentities)
		}
		assert.Empty(t, rem.calls)
		assert.Empty(t, conf.prompts)
	})

	t.Run("declined", func(t *testing.T) {
		rem := &fakeRemote{}
		conf := &answer{ok: false}
		err := newLedger(rem, &countingReloader{}, conf, true).AdminClear(ctx, 3, 42)
		require.ErrorIs(t, err, ErrCancelled)
		assert.Empty(t, rem.calls)
		assert.Equal(t, []string{"Remove the claim of Pilot A on Harbinger Navy?"}, conf.prompts)
	})

	t.Run("confirmed", func(t *testing.T) {
		rem := &fakeRemote{}
		rel := &countingReloader{}
		require.NoError(t, newLedger(rem, rel, &answer{ok: true}, true).AdminClear(ctx, 3, 42))
		assert.Equal(t, []claimCall{{Kind: "delete", FitID: 3, UserID: 42}}, rem.calls)
		assert.Equal(t, 1, rel.n)
	})

	t.Run("server refuses", func(t *testing.T) {
		rem := &fakeRemote{err: errors.New("forbidden")}
		rel := &countingReloader{}
		err := newLedger(rem, rel, &answer{ok: true}, true).AdminClear(ctx, 3, 42)
		assert.EqualError(t, err, "forbidden")
		assert.Zero(t, rel.n)
	})
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5", 5, false},
		{"  12 ", 12, false},
		{"7 ships", 7, false},
		{"3.9", 3, false},
		{"-2", -2, false},
		{"", 0, true},
		{"abc", 0, true},
		{"+", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuantity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimantsLabel(t *testing.T) {
	assert.Equal(t, "Pilot A (2)", fits[3].ClaimantsLabel())
	assert.Equal(t, "Someone (9)", Entry{ClaimantsText: " Someone (9) "}.ClaimantsLabel())
}
