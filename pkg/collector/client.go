package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultSingleTimeout = 8 * time.Second
	defaultBatchTimeout  = 15 * time.Second
)

// Client talks to the remote collector over plain HTTP+JSON. All calls carry
// explicit timeouts; a timed-out call is reported the same as a failed one.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	singleTimeout time.Duration
	batchTimeout  time.Duration
}

// Options customizes Client timeouts, mainly for tests.
type Options struct {
	HTTPClient    *http.Client
	SingleTimeout time.Duration
	BatchTimeout  time.Duration
}

// NewClient builds a collector client for the given base URL.
func NewClient(baseURL string) (*Client, error) {
	return NewClientWithOptions(baseURL, Options{})
}

// NewClientWithOptions builds a client with advanced options.
func NewClientWithOptions(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("collector base url is empty")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	singleTimeout := opts.SingleTimeout
	if singleTimeout <= 0 {
		singleTimeout = defaultSingleTimeout
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		singleTimeout: singleTimeout,
		batchTimeout:  batchTimeout,
	}, nil
}

// BaseURL returns the normalized collector base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendPing delivers a single ping. Any 2xx response counts as success.
func (c *Client) SendPing(ctx context.Context, ping Ping) error {
	ctx, cancel := context.WithTimeout(ctx, c.singleTimeout)
	defer cancel()
	return c.postJSON(ctx, "/locations", ping, nil)
}

// SendBatch delivers pings in a single request. The collector accepts
// duplicate samples idempotently, so a retried batch is harmless.
func (c *Client) SendBatch(ctx context.Context, pings []Ping) error {
	if len(pings) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()
	return c.postJSON(ctx, "/locations/batch", batchRequest{Samples: pings}, nil)
}

// Register creates the canonical operator record for this device.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Operator, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("register request missing operator name")
	}
	ctx, cancel := context.WithTimeout(ctx, c.singleTimeout)
	defer cancel()
	var operator Operator
	if err := c.postJSON(ctx, "/register", req, &operator); err != nil {
		return nil, err
	}
	if strings.TrimSpace(operator.ID) == "" {
		return nil, errors.New("collector register returned empty operator id")
	}
	return &operator, nil
}

// ShiftStatus fetches the server-authoritative shift state for an operator.
func (c *Client) ShiftStatus(ctx context.Context, operatorID string) (*ShiftStatus, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil, errors.New("operator id is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.singleTimeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/shift-status/%s", c.baseURL, operatorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build shift status request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call shift status")
	}
	defer resp.Body.Close()
	if !success(resp.StatusCode) {
		return nil, c.errorFromResponse(resp)
	}
	var status ShiftStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, errors.Wrap(err, "decode shift status response")
	}
	return &status, nil
}

// Reachable reports whether the collector answers at all. Any response,
// including an error status, means the network path is up.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("collector unreachable")
		return false
	}
	resp.Body.Close()
	return true
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s payload", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call collector %s", path)
	}
	defer resp.Body.Close()
	if !success(resp.StatusCode) {
		return c.errorFromResponse(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s response", path)
		}
	}
	return nil
}

func success(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return errors.Errorf("collector request %s %s failed: status=%d body=%s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}
