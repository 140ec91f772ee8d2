// Package provider talks to a region's permission administrator over HTTP:
// it sends new permission requests, fetches metered data, terminates
// permissions and verifies the callbacks the administrator posts back.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gridshare/platform/internal/credential"
	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/guard"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Temporary reports whether the administrator failed rather than refused.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// ClientConfig configures a RegionClient.
type ClientConfig struct {
	RegionID        string
	BaseURL         string
	Timeout         time.Duration
	RPS             float64
	Burst           int
	BreakerFailures int
	BreakerReset    time.Duration

	// App authenticates calls without a customer token. Nil sends them
	// unauthenticated.
	App *clientcredentials.Config
	// Customer refreshes per-permission tokens. Nil uses stored tokens as is.
	Customer *oauth2.Config
}

// RegionClient is the HTTP collaborator of one region. Calls are rate
// limited and pass through a circuit breaker keyed by region id.
type RegionClient struct {
	cfg     ClientConfig
	base    *url.URL
	plain   *http.Client
	app     *http.Client
	tokens  *credential.TokenStore
	limiter *guard.RateLimiter
	breaker *guard.CircuitBreaker
	logger  *slog.Logger
}

// NewRegionClient creates a client. tokens may be nil when the region does
// not issue customer tokens.
func NewRegionClient(cfg ClientConfig, tokens *credential.TokenStore, logger *slog.Logger) (*RegionClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid region base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = time.Minute
	}

	plain := &http.Client{Timeout: cfg.Timeout}
	app := plain
	if cfg.App != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, plain)
		app = cfg.App.Client(ctx)
		app.Timeout = cfg.Timeout
	}

	return &RegionClient{
		cfg:     cfg,
		base:    base,
		plain:   plain,
		app:     app,
		tokens:  tokens,
		limiter: guard.NewRateLimiter(cfg.RPS, cfg.Burst),
		breaker: guard.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		logger:  logger,
	}, nil
}

// BreakerState exposes the circuit state of the region.
func (c *RegionClient) BreakerState() guard.CircuitState {
	return c.breaker.State(c.cfg.RegionID)
}

type sendRequest struct {
	PermissionID string             `json:"permissionId"`
	ConnectionID string             `json:"connectionId"`
	DataNeedID   string             `json:"dataNeedId"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	DataStart    *time.Time         `json:"dataStart,omitempty"`
	DataEnd      *time.Time         `json:"dataEnd,omitempty"`
	Granularity  domain.Granularity `json:"granularity,omitempty"`
}

// Send submits a validated request to the permission administrator.
func (c *RegionClient) Send(ctx context.Context, pr *domain.PermissionRequest) error {
	body := sendRequest{
		PermissionID: pr.PermissionID,
		ConnectionID: pr.ConnectionID,
		DataNeedID:   pr.DataNeedID,
		Start:        pr.Start,
		End:          pr.End,
		Granularity:  pr.Granularity,
	}
	if !pr.DataStart.IsZero() {
		body.DataStart, body.DataEnd = &pr.DataStart, &pr.DataEnd
	}
	return c.call(ctx, "", http.MethodPost, "/permission-requests", nil, body, nil)
}

type reading struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
}

// Fetch downloads readings not seen yet and returns the end of the newest
// one, or the zero time when nothing new was available.
func (c *RegionClient) Fetch(ctx context.Context, pr *domain.PermissionRequest) (time.Time, error) {
	from := pr.DataStart
	if pr.LatestMeterReading.After(from) {
		from = pr.LatestMeterReading
	}
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if end := pr.DataWindowEnd(); !end.IsZero() {
		q.Set("to", end.UTC().Format(time.RFC3339))
	}
	if pr.Granularity != "" {
		q.Set("granularity", string(pr.Granularity))
	}

	var resp struct {
		Readings []reading `json:"readings"`
	}
	path := "/permission-requests/" + url.PathEscape(pr.PermissionID) + "/readings"
	if err := c.call(ctx, pr.PermissionID, http.MethodGet, path, q, nil, &resp); err != nil {
		return time.Time{}, err
	}

	var latest time.Time
	for _, r := range resp.Readings {
		if r.End.After(latest) {
			latest = r.End
		}
	}
	c.logger.Debug("region readings fetched",
		"permission_id", pr.PermissionID,
		"readings", len(resp.Readings),
		"latest", latest,
	)
	return latest, nil
}

// Terminate ends the permission at the administrator.
func (c *RegionClient) Terminate(ctx context.Context, pr *domain.PermissionRequest) error {
	path := "/permission-requests/" + url.PathEscape(pr.PermissionID) + "/terminate"
	return c.call(ctx, pr.PermissionID, http.MethodPost, path, nil, nil, nil)
}

// call runs one request through the limiter and breaker. Refusals (4xx)
// are returned without counting against the breaker.
func (c *RegionClient) call(ctx context.Context, permissionID, method, path string, q url.Values, in, out interface{}) error {
	if err := c.limiter.Wait(ctx, c.cfg.RegionID); err != nil {
		return fmt.Errorf("rate limit %s: %w", c.cfg.RegionID, err)
	}

	var refused error
	err := c.breaker.Do(ctx, c.cfg.RegionID, func(ctx context.Context) error {
		err := c.do(ctx, permissionID, method, path, q, in, out)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			refused = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return refused
}

func (c *RegionClient) do(ctx context.Context, permissionID, method, path string, q url.Values, in, out interface{}) error {
	u := c.base.JoinPath(path)
	u.RawQuery = q.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client, err := c.clientFor(ctx, permissionID, req)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// clientFor authenticates req with the customer token of the permission
// when one is stored and falls back to the application client otherwise.
func (c *RegionClient) clientFor(ctx context.Context, permissionID string, req *http.Request) (*http.Client, error) {
	if c.tokens == nil || permissionID == "" {
		return c.app, nil
	}

	var tok *oauth2.Token
	var err error
	if c.cfg.Customer != nil {
		var src oauth2.TokenSource
		src, err = c.tokens.TokenSource(ctx, permissionID, c.cfg.Customer)
		if err == nil {
			tok, err = src.Token()
		}
	} else {
		tok, err = c.tokens.Get(ctx, permissionID)
	}
	if errors.Is(err, credential.ErrNoToken) {
		return c.app, nil
	}
	if err != nil {
		return nil, fmt.Errorf("customer token for %s: %w", permissionID, err)
	}
	tok.SetAuthHeader(req)
	return c.plain, nil
}
