package financeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "financeapi")

// ErrEmptyResponse is returned when a successful response has no body.
var ErrEmptyResponse = errors.New("empty response body")

const (
	// PathExpenses is the collection path of expense records.
	PathExpenses = "/despesas"

	// HeaderRequestID is set on every request.
	HeaderRequestID = "X-Request-ID"

	defaultUserAgent = "finassist"
	maxErrorBody     = 1024
)

// Client is the finance API client.
// It is safe for concurrent use.
type Client struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
	userAgent string
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("finance API URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid finance API URL: %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, errors.Newf("invalid finance API URL: %q", baseURL)
	}

	c := &Client{
		baseURL:   baseURL,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListExpenses returns the records of the user as returned by the API.
// Numbers are decoded as json.Number.
func (c *Client) ListExpenses(ctx context.Context, user string) ([]map[string]any, error) {
	var res []map[string]any
	err := c.do(ctx, http.MethodGet, PathExpenses+"/"+url.PathEscape(user), nil, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateExpense posts the record and returns the created record.
// The record is sent as is, callers are expected to validate it.
func (c *Client) CreateExpense(ctx context.Context, record map[string]any) (map[string]any, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode expense")
	}

	var res map[string]any
	err = c.do(ctx, http.MethodPost, PathExpenses, body, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// httpClient returns a client scoped to a single call.
func (c *Client) httpClient() *http.Client {
	return &http.Client{
		Transport: c.transport,
		Timeout:   c.timeout,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		metricskey.StatsFinanceAPIErrors.IncrCounter(1, method, "transport")
		logger.ContextKV(ctx, xlog.ERROR,
			"method", method,
			"url", target,
			"request_id", requestID,
			"err", err.Error())
		return errors.Wrapf(err, "finance API %s %s", method, target)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	metricskey.PerfFinanceAPICall.MeasureSince(started, method, status)

	logger.ContextKV(ctx, xlog.DEBUG,
		"method", method,
		"url", target,
		"request_id", requestID,
		"status", resp.StatusCode,
		"elapsed", time.Since(started).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metricskey.StatsFinanceAPIErrors.IncrCounter(1, method, status)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.WithStack(&StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		})
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err = dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Wrapf(ErrEmptyResponse, "finance API %s %s", method, target)
		}
		return errors.Wrapf(err, "failed to decode response from %s %s", method, target)
	}
	return nil
}
