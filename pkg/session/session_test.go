package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages []string
	err   error
	paths []string
	token string
}

func (f *fakeFetcher) FetchPage(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return "", f.err
	}
	body := f.pages[0]
	if len(f.pages) > 1 {
		f.pages = f.pages[1:]
	}
	return body, nil
}

func (f *fakeFetcher) SetCSRFToken(token string) { f.token = token }

const first = `<html><body>
<input type="hidden" name="csrfmiddlewaretoken" value="t1">
<table id="contractsTable"><thead><tr><th data-col="id">ID</th><th data-col="subsidy">Subsidy</th></tr></thead>
<tbody><tr class="contract-row" data-id="5"><td>5</td><td><input data-field="subsidy_amount" value="10"></td></tr></tbody></table>
<a class="claim-link" data-fit-id="3" data-fit-name="Drake" data-claimed-me="2">x</a>
</body></html>`

const second = `<html><body>
<input type="hidden" name="csrfmiddlewaretoken" value="t2">
<table id="contractsTable"><thead><tr><th data-col="id">ID</th></tr></thead><tbody></tbody></table>
</body></html>`

func TestReloadReplacesSnapshot(t *testing.T) {
	f := &fakeFetcher{pages: []string{first, second}}
	s := New(f, "contract/review/", nil)
	ctx := context.Background()

	assert.Nil(t, s.Snapshot())
	_, ok := s.SubsidyAmount("5")
	assert.False(t, ok)

	var hooked []*page.Snapshot
	s.OnReload(func(p *page.Snapshot) { hooked = append(hooked, p) })

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, "t1", f.token)
	amount, ok := s.SubsidyAmount("5")
	require.True(t, ok)
	assert.Equal(t, "10", amount.String())
	entry, ok := s.ClaimEntry(3)
	require.True(t, ok)
	assert.Equal(t, 2, entry.ClaimedByCaller)

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, "t2", f.token)
	_, ok = s.SubsidyAmount("5")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Reloads())
	assert.Len(t, hooked, 2)
	assert.Equal(t, []string{"contract/review/", "contract/review/"}, f.paths)
}

func TestReloadErrorKeepsOldSnapshot(t *testing.T) {
	f := &fakeFetcher{pages: []string{first}}
	s := New(f, "", nil)
	require.NoError(t, s.Reload(context.Background()))

	f.err = errors.New("connection reset")
	err := s.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotNil(t, s.Snapshot())
	assert.Equal(t, 1, s.Reloads())
}
