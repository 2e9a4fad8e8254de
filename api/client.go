package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	// maxAckBytes caps how much of a response body is read looking for an ack.
	maxAckBytes = 64
)

type Options struct {
	ConnectTimeout time.Duration // Bound on dialing the worker, DefaultConnectTimeout when zero
	RequestTimeout time.Duration // Bound on a whole request, none when zero
	Transport      http.RoundTripper
}

// Client posts file notifications to the worker. One Client is shared by
// every notification and is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// Ack is what the worker answered. Value holds the body parsed as an integer
// when HasValue is set.
type Ack struct {
	StatusCode int
	Value      int64
	HasValue   bool
}

func New(baseURL string, opts Options) *Client {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.DialContext = (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		base.TLSHandshakeTimeout = connectTimeout
		transport = base
	}

	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
	}
}

// TargetURL returns the notification URL for a file name.
func (c *Client) TargetURL(name string) string {
	return c.baseURL + url.PathEscape(name)
}

// Notify posts an empty body to the URL for name. Any non-2xx answer is
// reported as a *DispatchError.
func (c *Client) Notify(ctx context.Context, name string) (Ack, error) {
	target := c.TargetURL(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, http.NoBody)
	if err != nil {
		return Ack{}, &DispatchError{URL: target, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Ack{}, &DispatchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	ack := Ack{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxAckBytes))
		return ack, &DispatchError{URL: target, StatusCode: resp.StatusCode}
	}

	ack.Value, ack.HasValue = readAck(resp.Body)
	return ack, nil
}

// readAck parses the body as a base-10 integer. Anything else is ignored.
func readAck(body io.Reader) (int64, bool) {
	raw, err := io.ReadAll(io.LimitReader(body, maxAckBytes))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DispatchError is a failed notification: either the request never got an
// answer (Err is set) or the worker answered with a non-2xx status.
type DispatchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("notify %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
