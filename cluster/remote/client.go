package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/codec"
)

const dirScheme = "dir://"

// DefaultTimeout bounds each master call unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// StatusError reports a non-2xx master response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: master returned %d: %s", e.Code, e.Body)
}

// Client talks to a job master over HTTP. It implements cluster.Client and
// is safe for concurrent use.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	codec   codec.Codec
	limiter *rate.Limiter
	timeout time.Duration
}

// Option defines a configuration option for the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithCodec sets the codec used for request and response bodies.
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative rps
// means unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithTimeout bounds each master call on top of the caller's context.
// Fetch is exempt, since callers stream its body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the master at masterURL.
func NewClient(masterURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(masterURL)
	if err != nil {
		return nil, fmt.Errorf("remote: bad master url %q: %w", masterURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: master url %q needs scheme and host", masterURL)
	}

	c := &Client{
		base:    base,
		httpc:   &http.Client{},
		codec:   codec.Default,
		limiter: rate.NewLimiter(rate.Inf, 0),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Submit posts the spec and returns the job name the master assigned.
func (c *Client) Submit(ctx context.Context, spec cluster.JobSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var resp struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPost, c.base.JoinPath("jobs"), spec, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", errors.New("remote: master returned no job name")
	}
	return resp.Name, nil
}

// Results polls the job. A 404 means the master never saw the name, which
// is StatusUnknown, not an error.
func (c *Client) Results(ctx context.Context, name string) (cluster.JobResults, error) {
	var res cluster.JobResults
	err := c.do(ctx, http.MethodGet, c.base.JoinPath("jobs", name), nil, &res)
	if isNotFound(err) {
		return cluster.JobResults{Status: cluster.StatusUnknown}, nil
	}
	if err != nil {
		return cluster.JobResults{}, err
	}
	return res, nil
}

// Expand fetches the listing behind a dir:// location and returns its lines.
// Plain locations expand to themselves.
func (c *Client) Expand(ctx context.Context, location string) ([]string, error) {
	if !strings.HasPrefix(location, dirScheme) {
		return []string{location}, nil
	}

	rc, err := c.Fetch(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", location, err)
	}

	var locations []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			locations = append(locations, line)
		}
	}
	return locations, nil
}

// Fetch streams a result location. dir:// rewrites to http://; relative
// locations resolve against the master URL.
func (c *Client) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := c.resolveLocation(location)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := newStatusError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Clean forgets the job on the master, keeping its results. Unknown names
// are fine.
func (c *Client) Clean(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodPost, c.base.JoinPath("jobs", name, "clean"), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Purge removes the job and its results on the master. Unknown names are
// fine.
func (c *Client) Purge(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, c.base.JoinPath("jobs", name), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) resolveLocation(location string) (*url.URL, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("remote: bad location %q: %w", location, err)
	}
	if u.Scheme == "dir" {
		u.Scheme = "http"
	}
	if !u.IsAbs() {
		u = c.base.ResolveReference(u)
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := c.codec.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return c.codec.Unmarshal(data, out)
}

func newStatusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
