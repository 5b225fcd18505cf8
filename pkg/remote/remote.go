// Package remote talks to the subsidy web application: it fetches page
// snapshots and posts the mutating actions. JSON envelopes are read with gjson.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/whttp"
	"github.com/tidwall/gjson"
)

// RemoteError is a failure reported by the server in an {ok:false, error} envelope
// or by a non-2xx status.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned HTTP %d", e.Status)
	}
	return e.Message
}

type ContractItem struct {
	Name     string
	Qty      int64
	Included bool
}

type Location struct {
	ID   int64
	Name string
}

// TablePref is the per-account view preference mirrored on the server.
type TablePref struct {
	TableKey string            `json:"table_key,omitempty"`
	SortIdx  int               `json:"sort_idx"`
	SortDir  string            `json:"sort_dir"`
	Filters  map[string]string `json:"filters"`
}

type Client struct {
	http      *whttp.Client
	endpoints config.Endpoints

	mu   sync.RWMutex
	csrf string
}

func New(h *whttp.Client, endpoints config.Endpoints) *Client {
	return &Client{http: h, endpoints: endpoints}
}

// SetCSRFToken records the token found in the latest page snapshot.
func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

func (c *Client) csrfToken() string {
	if cookie := c.http.CSRFCookie(); cookie != "" {
		return cookie
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrf
}

func (c *Client) Endpoints() config.Endpoints {
	return c.endpoints
}

// FetchPage returns the HTML of a page. Non-2xx is an error.
func (c *Client) FetchPage(ctx context.Context, path string) (string, error) {
	req := &whttp.WHTTPReq{Method: http.MethodGet, URL: path}
	res, err := c.http.Send(ctx, req)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", whttp.StatusErr(req, res)
	}
	return res.BodyString, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*whttp.WHTTPRes, error) {
	req := &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    path,
		Body:   form.Encode(),
		Headers: []whttp.WHTTPHeader{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded; charset=UTF-8"},
			{Name: "X-CSRFToken", Value: c.csrfToken()},
		},
	}
	res, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return res, whttp.StatusErr(req, res)
	}
	return res, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (*whttp.WHTTPRes, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req := &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    path,
		Body:   string(body),
		Headers: []whttp.WHTTPHeader{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "X-CSRFToken", Value: c.csrfToken()},
		},
	}
	return c.http.Send(ctx, req)
}

// envelope checks an {ok, error} response. A non-2xx status or ok=false is a RemoteError.
func envelope(res *whttp.WHTTPRes, fallback string) (gjson.Result, error) {
	parsed := gjson.Parse(res.BodyString)
	if !gjson.Valid(res.BodyString) {
		if res.OK() {
			return parsed, &RemoteError{Status: res.StatusCode, Message: fallback}
		}
		msg := fallback
		if res.HTTPTitle != "" {
			msg = res.HTTPTitle
		}
		return parsed, &RemoteError{Status: res.StatusCode, Message: msg}
	}
	if !res.OK() || !parsed.Get("ok").Bool() {
		msg := parsed.Get("error").String()
		if msg == "" {
			msg = fallback
		}
		return parsed, &RemoteError{Status: res.StatusCode, Message: msg}
	}
	return parsed, nil
}

// Approve posts an approval. A nil comment omits the field.
func (c *Client) Approve(ctx context.Context, id, subsidy string, comment *string) error {
	form := url.Values{}
	form.Set("subsidy_amount", subsidy)
	if comment != nil {
		form.Set("comment", *comment)
	}
	_, err := c.postForm(ctx, config.Expand(c.endpoints.Approve, id), form)
	return err
}

func (c *Client) Deny(ctx context.Context, id, subsidy, comment string) error {
	form := url.Values{}
	form.Set("subsidy_amount", subsidy)
	form.Set("comment", comment)
	_, err := c.postForm(ctx, config.Expand(c.endpoints.Deny, id), form)
	return err
}

// ForceFit assigns a fit to a contract. An empty fitID clears the override.
func (c *Client) ForceFit(ctx context.Context, contractID, fitID string) error {
	form := url.Values{}
	form.Set("fit_id", fitID)
	_, err := c.postForm(ctx, config.Expand(c.endpoints.ForceFit, contractID), form)
	return err
}

func (c *Client) ContractItems(ctx context.Context, id string) ([]ContractItem, error) {
	req := &whttp.WHTTPReq{Method: http.MethodGet, URL: config.Expand(c.endpoints.ContractItems, id)}
	res, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := envelope(res, "Failed to load items")
	if err != nil {
		return nil, err
	}

	var items []ContractItem
	data.Get("items").ForEach(func(_, item gjson.Result) bool {
		items = append(items, ContractItem{
			Name:     item.Get("name").String(),
			Qty:      item.Get("qty").Int(),
			Included: item.Get("is_included").Bool(),
		})
		return true
	})
	return items, nil
}

// LocationSearch looks up solar systems or stations by name.
func (c *Client) LocationSearch(ctx context.Context, query, category string) ([]Location, error) {
	q := url.Values{}
	q.Set("q", query)
	if category != "" {
		q.Set("category", category)
	}
	req := &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     c.endpoints.LocationSearch + "?" + q.Encode(),
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json"}},
	}
	res, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("location_search HTTP %d", res.StatusCode)
	}

	var out []Location
	gjson.Get(res.BodyString, "results").ForEach(func(_, item gjson.Result) bool {
		out = append(out, Location{ID: item.Get("id").Int(), Name: item.Get("name").String()})
		return true
	})
	return out, nil
}

func (c *Client) SaveTablePref(ctx context.Context, pref TablePref) error {
	res, err := c.postJSON(ctx, c.endpoints.SaveTablePref, pref)
	if err != nil {
		return err
	}
	if !res.OK() {
		return &RemoteError{Status: res.StatusCode, Message: res.HTTPTitle}
	}
	return nil
}

func (c *Client) SaveClaim(ctx context.Context, fitID, quantity int) error {
	res, err := c.postJSON(ctx, c.endpoints.SaveClaim, map[string]int{"fit_id": fitID, "quantity": quantity})
	if err != nil {
		return err
	}
	_, err = envelope(res, "Failed to save claim")
	return err
}

// DeleteClaim removes the caller's claim, or the claim of userID when it is non-zero.
func (c *Client) DeleteClaim(ctx context.Context, fitID, userID int) (bool, error) {
	payload := map[string]int{"fit_id": fitID}
	if userID != 0 {
		payload["user_id"] = userID
	}
	res, err := c.postJSON(ctx, c.endpoints.DeleteClaim, payload)
	if err != nil {
		return false, err
	}
	data, err := envelope(res, "Failed to clear claim")
	if err != nil {
		return false, err
	}
	return data.Get("deleted").Bool(), nil
}

// MarkPaid marks every approved contract of a character as paid and returns how many changed.
func (c *Client) MarkPaid(ctx context.Context, character string) (int, error) {
	form := url.Values{}
	form.Set("character", character)
	req := &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    c.endpoints.MarkPaid,
		Body:   form.Encode(),
		Headers: []whttp.WHTTPHeader{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded; charset=UTF-8"},
			{Name: "X-CSRFToken", Value: c.csrfToken()},
		},
	}
	res, err := c.http.Send(ctx, req)
	if err != nil {
		return 0, err
	}
	data, err := envelope(res, "Failed to mark as paid.")
	if err != nil {
		return 0, err
	}
	updated := data.Get("updated")
	if updated.Type == gjson.String {
		n, _ := strconv.Atoi(strings.TrimSpace(updated.String()))
		return n, nil
	}
	return int(updated.Int()), nil
}
