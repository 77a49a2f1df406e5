// Package client talks to a remote sandlab storage engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
	"tableflip.dev/sandlab/pkg/server"
)

// ErrRemote is returned when the storage engine answers with success=false.
var ErrRemote = errors.New("client: storage engine error")

// Client implements coordinator.Remote over HTTP for one workflow.
type Client struct {
	BaseURL  string
	Workflow string
	HTTP     *http.Client
	Logger   *zap.Logger
}

var _ coordinator.Remote = (*Client)(nil)

// New returns a client for the workflow served at baseURL.
func New(baseURL, workflow string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Workflow: workflow,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		Logger:   logging.OrNop(logger),
	}
}

func (c *Client) endpoint() string {
	return c.BaseURL + "/api/v1/" + url.PathEscape(c.Workflow) + "/records"
}

// Fetch returns the record for key, or nil when the engine has none.
func (c *Client) Fetch(ctx context.Context, key ledger.Key) (*ledger.Record, error) {
	q := url.Values{"date": {key.Date}}
	if key.Unit != "" {
		q.Set("key", key.Unit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch %s: %w", key, err)
	}
	return resp.Data, nil
}

// Submit posts the payload of one table.
func (c *Client) Submit(ctx context.Context, key ledger.Key, p ledger.Payload) (coordinator.Result, error) {
	body, err := json.Marshal(p.Body(key))
	if err != nil {
		return coordinator.Result{Table: p.Table}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return coordinator.Result{Table: p.Table}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return coordinator.Result{Table: p.Table}, fmt.Errorf("client: submit table %d for %s: %w", p.Table, key, err)
	}
	return coordinator.Result{Table: p.Table, Message: resp.Message, Rejected: resp.Rejected}, nil
}

func (c *Client) do(req *http.Request) (*server.Response, error) {
	id := uuid.New().String()
	req.Header.Set(server.RequestIDHeader, id)
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	logging.OrNop(c.Logger).Debug("storage engine call",
		zap.String("id", id),
		zap.String("method", req.Method),
		zap.Int("status", res.StatusCode),
		zap.Duration("latency", time.Since(start)))

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var out server.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", res.Status, err)
	}
	if !out.Success || res.StatusCode >= http.StatusBadRequest {
		msg := out.Message
		if msg == "" {
			msg = res.Status
		}
		return nil, fmt.Errorf("%w: %s", ErrRemote, msg)
	}
	return &out, nil
}
