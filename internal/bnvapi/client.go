// Package bnvapi is the client for the BNV ME:ID backend.
package bnvapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bnv-me/webbnv/internal/metrics"
	"github.com/bnv-me/webbnv/internal/retry"
)

const (
	defaultAttempts        = 3
	defaultDelay           = 2 * time.Second
	defaultCreateUserDelay = 3 * time.Second
	defaultTimeout         = 30 * time.Second
)

// StatusError is returned when the backend answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: status %d", e.StatusCode)
}

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	Attempts        int
	Delay           time.Duration
	CreateUserDelay time.Duration
	Strategy        retry.Strategy
	Logger          *slog.Logger
}

// Client calls the backend endpoints. Every call is retried according to
// the configured policy.
type Client struct {
	baseURL         string
	http            *http.Client
	attempts        int
	delay           time.Duration
	createUserDelay time.Duration
	strategy        retry.Strategy
	log             *slog.Logger
}

// New creates a backend client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            cfg.HTTPClient,
		attempts:        cfg.Attempts,
		delay:           cfg.Delay,
		createUserDelay: cfg.CreateUserDelay,
		strategy:        cfg.Strategy,
		log:             cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.delay <= 0 {
		c.delay = defaultDelay
	}
	if c.createUserDelay <= 0 {
		c.createUserDelay = defaultCreateUserDelay
	}
	if c.strategy == "" {
		c.strategy = retry.Constant
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "bnvapi")
	return c
}

// Landing fetches the landing page data.
func (c *Client) Landing(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{
		endpoint: "landing",
		method:   http.MethodGet,
		path:     "/api/landing",
		delay:    c.delay,
	}, &out)
	return out, err
}

// CreateUser registers a ME:ID user for the agent.
func (c *Client) CreateUser(ctx context.Context, name, agentID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{
		endpoint: "add_user",
		method:   http.MethodPost,
		path:     "/api/eliza/add-user",
		body:     createUserRequest{Name: name, AgentID: agentID},
		delay:    c.createUserDelay,
	}, &out)
	return out, err
}

// Wearables fetches the wearable catalog visible to the agent.
func (c *Client) Wearables(ctx context.Context, agentID string) (*WearablesResponse, error) {
	var out WearablesResponse
	err := c.do(ctx, call{
		endpoint: "get_wearables",
		method:   http.MethodGet,
		path:     "/api/eliza/get-wearables",
		apiKey:   agentID,
		delay:    c.delay,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOutfit submits a new outfit for the agent's avatar.
func (c *Client) UpdateOutfit(ctx context.Context, agentID string, vars OutfitVariables) (json.RawMessage, error) {
	if vars.Wearables == nil {
		vars.Wearables = []OutfitWearable{}
	}
	var out json.RawMessage
	err := c.do(ctx, call{
		endpoint: "update_outfit",
		method:   http.MethodPost,
		path:     "/api/eliza/update-outfit",
		apiKey:   agentID,
		body:     updateOutfitRequest{OutfitVariables: vars},
		delay:    c.delay,
	}, &out)
	return out, err
}

type call struct {
	endpoint string
	method   string
	path     string
	apiKey   string
	body     any
	delay    time.Duration
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	var payload []byte
	if cl.body != nil {
		var err error
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", cl.endpoint, err)
		}
	}

	url := c.baseURL + cl.path
	policy := retry.Policy{Attempts: c.attempts, Delay: cl.delay, Strategy: c.strategy}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := c.attempt(ctx, cl, url, payload, out)
		if err != nil {
			metrics.BackendRequestsTotal.WithLabelValues(cl.endpoint, "failure").Inc()
			return err
		}
		metrics.BackendRequestsTotal.WithLabelValues(cl.endpoint, "success").Inc()
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.log.Warn("backend request failed, retrying",
			"endpoint", cl.endpoint,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		c.log.Error("backend request failed, all attempts exhausted",
			"endpoint", cl.endpoint,
			"attempts", c.attempts,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, cl call, url string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, url, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", cl.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cl.apiKey != "" {
		req.Header.Set("api-key", cl.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", cl.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", cl.endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", cl.endpoint, err)
	}
	return nil
}
