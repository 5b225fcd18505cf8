package whttp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const (
	USER_AGENT = "subsidyctl/1.0 (+https://github.com/aasubsidy/subsidyctl)"

	DEFAULT_RETRIES = 2
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    string
}

type WHTTPRes struct {
	StatusCode     int
	ResponseLength int
	HTTPTitle      string
	BodyString     string
	Headers        http.Header
}

// OK reports whether the response carries a 2xx status.
func (r *WHTTPRes) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned by callers that treat non-2xx responses as failures.
type StatusError struct {
	URL        string
	StatusCode int
	Title      string
}

func (e *StatusError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("%s returned HTTP %d (%s)", e.URL, e.StatusCode, e.Title)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// SessionCookie is "name=value" of an already authenticated session.
	SessionCookie string
	// CSRFCookie is the cookie name the server stores its CSRF token in.
	CSRFCookie string
	Proxy      string
	// Retries applies to GET and HEAD only; other methods are sent once.
	Retries int
	// RetryWait is the minimum backoff between retries (default 500ms).
	RetryWait time.Duration
	Timeout   time.Duration
}

// Client sends requests relative to a base URL, sharing one cookie jar.
type Client struct {
	http       *retryablehttp.Client
	base       *url.URL
	csrfCookie string
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = opts.Retries
	if opts.Retries < 0 {
		retryClient.RetryMax = 0
	}
	retryClient.RetryWaitMin = 500 * time.Millisecond
	if opts.RetryWait > 0 {
		retryClient.RetryWaitMin = opts.RetryWait
	}
	retryClient.RetryWaitMax = 5 * time.Second
	if retryClient.RetryWaitMax < retryClient.RetryWaitMin {
		retryClient.RetryWaitMax = retryClient.RetryWaitMin
	}
	retryClient.CheckRetry = retryPolicy
	retryClient.HTTPClient.Jar = jar
	retryClient.HTTPClient.Timeout = opts.Timeout
	// Return the last response instead of an error once retries are exhausted.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		retryClient.HTTPClient.Transport = &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	c := &Client{http: retryClient, base: base, csrfCookie: opts.CSRFCookie}
	if opts.SessionCookie != "" {
		name, value, ok := strings.Cut(opts.SessionCookie, "=")
		if !ok {
			return nil, fmt.Errorf("session cookie must look like name=value")
		}
		c.SetCookie(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return c, nil
}

type methodKey struct{}

// retryPolicy retries only requests that are safe to repeat. A POST that
// failed with a 5xx may already have been applied by the server.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !idempotent(requestMethod(ctx, resp)) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func requestMethod(ctx context.Context, resp *http.Response) string {
	if resp != nil && resp.Request != nil {
		return resp.Request.Method
	}
	method, _ := ctx.Value(methodKey{}).(string)
	return method
}

func idempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead:
		return true
	}
	return false
}

// Resolve turns a path relative to the base URL into an absolute URL.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return c.base.String() + strings.TrimPrefix(path, "/")
	}
	return c.base.ResolveReference(ref).String()
}

// SetCookie stores a cookie for the base URL host.
func (c *Client) SetCookie(name, value string) {
	c.http.HTTPClient.Jar.SetCookies(c.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Cookie returns the value of a cookie set for the base URL, or "".
func (c *Client) Cookie(name string) string {
	for _, cookie := range c.http.HTTPClient.Jar.Cookies(c.base) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// CSRFCookie returns the CSRF token the server stored in its cookie, if any.
func (c *Client) CSRFCookie() string {
	if c.csrfCookie == "" {
		return ""
	}
	return c.Cookie(c.csrfCookie)
}

// Send performs the request. Non-2xx responses are returned, not turned into errors.
func (c *Client) Send(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	target := wReq.URL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.Resolve(target)
	}

	var body io.Reader
	if wReq.Body != "" {
		body = strings.NewReader(wReq.Body)
	}
	// Connection errors carry no response, so the retry policy reads the method from ctx.
	ctx = context.WithValue(ctx, methodKey{}, strings.ToUpper(wReq.Method))
	req, err := retryablehttp.NewRequestWithContext(ctx, wReq.Method, target, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-Id", uuid.NewString())

	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
		Headers:    resp.Header,
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if title, ok := getHTMLTitle(wRes.BodyString); ok {
			wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
		}
	}
	wRes.ResponseLength = utf8.RuneCountInString(wRes.BodyString)
	return wRes, nil
}

// StatusErr builds a StatusError for a failed response.
func StatusErr(wReq *WHTTPReq, res *WHTTPRes) error {
	return &StatusError{URL: wReq.URL, StatusCode: res.StatusCode, Title: res.HTTPTitle}
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(requestBody string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(requestBody))
	if err != nil {
		return "", false
	}

	return traverse(doc)
}
