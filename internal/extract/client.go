// Package extract pages through the open data search API.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/version"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// ErrCeilingReached means the provider refused to page further (HTTP 400 on
// an offset past its result-count ceiling). Pages treats it as the end of the
// data, not as a failure.
var ErrCeilingReached = errors.New("provider result ceiling reached")

// Style selects the query parameters understood by the provider.
type Style string

const (
	// StyleRecords is the records search API: dataset, rows, start.
	StyleRecords Style = "records"
	// StyleExplore is the explore API: limit and offset on a per-dataset URL.
	// The URL may contain a {dataset} placeholder.
	StyleExplore Style = "explore"
)

// Config configures a Client.
type Config struct {
	SearchURL string
	Dataset   string
	Style     Style
	// PageSize is the number of records requested per call.
	PageSize int
	// MaxRecords stops extraction after this many records (0 = no limit).
	MaxRecords int
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of retries of a transient failure.
	MaxRetries   int
	RetryBackoff time.Duration
	// RequestsPerSecond throttles calls (0 = unthrottled).
	RequestsPerSecond float64
	UserAgent         string
}

// Page is one batch of raw records.
type Page struct {
	Records []any
	// Offset of the first record in the dataset.
	Offset int
	// TotalHits is the provider's total record count, -1 when unknown.
	TotalHits int64
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client fetches pages from the API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. A nil httpClient uses a default client.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search url is required")
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	switch cfg.Style {
	case "":
		cfg.Style = StyleRecords
	case StyleRecords, StyleExplore:
	default:
		return nil, fmt.Errorf("unknown api style %q", cfg.Style)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.Name + "/" + version.Version
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{cfg: cfg, http: httpClient}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Pages returns the dataset as a lazy sequence of pages. The sequence ends
// after an empty or short page, when MaxRecords is reached, or when the
// provider reports its result ceiling. Any other failure is yielded once as
// an error and ends the sequence. Each call starts again from offset 0.
func (c *Client) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		offset := 0
		for {
			limit := c.cfg.PageSize
			if c.cfg.MaxRecords > 0 {
				if remaining := c.cfg.MaxRecords - offset; remaining < limit {
					limit = remaining
				}
			}
			if limit <= 0 {
				return
			}

			page, err := c.FetchPage(ctx, offset, limit)
			if errors.Is(err, ErrCeilingReached) {
				logging.Warn("Provider result ceiling reached at offset %d, stopping extraction", offset)
				return
			}
			if err != nil {
				yield(Page{}, err)
				return
			}
			if len(page.Records) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page.Records) < limit {
				return
			}
			offset += len(page.Records)
		}
	}
}

// FetchPage fetches limit records starting at offset, retrying transient
// failures with exponential backoff.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) (Page, error) {
	b := retry.NewExponential(c.cfg.RetryBackoff)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(uint64(max(c.cfg.MaxRetries, 0)), b)

	var page Page
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		page, err = c.fetch(ctx, offset, limit)
		if err != nil && retryable(ctx, err) {
			logging.Warn("Fetching offset %d failed (attempt %d): %v", offset, attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) fetch(ctx context.Context, offset, limit int) (Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, err
		}
	}

	reqURL, err := c.pageURL(offset, limit)
	if err != nil {
		return Page{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	logging.Debug("GET %s", reqURL)
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("requesting page at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return Page{}, ErrCeilingReached
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	records, total, err := decodePayload(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("decoding page at offset %d: %w", offset, err)
	}
	return Page{Records: records, Offset: offset, TotalHits: total}, nil
}

func (c *Client) pageURL(offset, limit int) (string, error) {
	raw := c.cfg.SearchURL
	if c.cfg.Style == StyleExplore {
		raw = strings.ReplaceAll(raw, "{dataset}", url.PathEscape(c.cfg.Dataset))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing search url: %w", err)
	}
	q := u.Query()
	switch c.cfg.Style {
	case StyleExplore:
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
	default:
		q.Set("dataset", c.cfg.Dataset)
		q.Set("rows", strconv.Itoa(limit))
		q.Set("start", strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ReadRecords decodes an API payload or an export file into raw records.
func ReadRecords(r io.Reader) ([]any, error) {
	records, _, err := decodePayload(r)
	return records, err
}

// decodePayload accepts {"records": [...]}, {"results": [...]} or a bare
// array. Numbers are kept as json.Number.
func decodePayload(r io.Reader) ([]any, int64, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, -1, err
	}

	switch p := payload.(type) {
	case []any:
		return p, -1, nil
	case map[string]any:
		total := int64(-1)
		for _, key := range []string{"nhits", "total_count"} {
			if n, ok := p[key].(json.Number); ok {
				if v, err := n.Int64(); err == nil {
					total = v
					break
				}
			}
		}
		for _, key := range []string{"records", "results"} {
			if v, ok := p[key]; ok && v != nil {
				records, ok := v.([]any)
				if !ok {
					return nil, total, fmt.Errorf("%q is not a list", key)
				}
				return records, total, nil
			}
		}
		return []any{}, total, nil
	default:
		return nil, -1, fmt.Errorf("unexpected payload type %T", payload)
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, ErrCeilingReached) {
		return false
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false
	}
	// network errors and per-request timeouts
	return true
}
