package whttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTMLTitle(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"simple", "<html><head><title>Forbidden</title></head></html>", "Forbidden", true},
		{"empty title", "<html><head><title></title></head></html>", "", true},
		{"no title", "<html><body>hi</body></html>", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := getHTMLTitle(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendSetsHeadersAndKeepsCookies(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok123", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><head><title>\n403 Forbidden\n</title></head></html>"))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL + "/subsidy", SessionCookie: "sessionid=abc", CSRFCookie: "csrftoken"})
	require.NoError(t, err)

	req := &WHTTPReq{Method: http.MethodGet, URL: "contract/review/", Headers: []WHTTPHeader{{Name: "X-CSRFToken", Value: "x"}}}
	res, err := c.Send(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, "403 Forbidden", res.HTTPTitle)
	assert.Equal(t, "XMLHttpRequest", seen.Get("X-Requested-With"))
	assert.NotEmpty(t, seen.Get("X-Request-Id"))
	assert.Equal(t, "x", seen.Get("X-CSRFToken"))
	assert.Contains(t, seen.Get("Cookie"), "sessionid=abc")
	assert.Equal(t, "tok123", c.CSRFCookie())

	var se *StatusError
	require.ErrorAs(t, StatusErr(req, res), &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, se.Error(), "403 Forbidden")
}

func TestResolve(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "https://auth.example.org/subsidy"})
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.org/subsidy/contract/1/approve/", c.Resolve("contract/1/approve/"))
	assert.Equal(t, "https://auth.example.org/subsidy/contract/review/", c.Resolve("/contract/review/"))
	assert.Equal(t, "https://auth.example.org/subsidy/", c.Resolve(""))
}

func TestNewClientRejectsBadInput(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "https://x.org", SessionCookie: "novalue"})
	assert.Error(t, err)
}

func TestRetriesOnlyIdempotentMethods(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.Method]++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Retries: DEFAULT_RETRIES, RetryWait: time.Millisecond})
	require.NoError(t, err)

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, DEFAULT_RETRIES + 1},
		{http.MethodPost, 1},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			res, err := c.Send(context.Background(), &WHTTPReq{Method: tt.method, URL: "x/", Body: "a=1"})
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadGateway, res.StatusCode)
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.want, calls[tt.method])
		})
	}
}

func TestRetryPolicyWithoutResponse(t *testing.T) {
	ctx := context.WithValue(context.Background(), methodKey{}, http.MethodPost)
	retry, err := retryPolicy(ctx, nil, assert.AnError)
	assert.NoError(t, err)
	assert.False(t, retry)

	ctx = context.WithValue(context.Background(), methodKey{}, http.MethodGet)
	retry, err = retryPolicy(ctx, nil, assert.AnError)
	assert.NoError(t, err)
	assert.True(t, retry)
}
