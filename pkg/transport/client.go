package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sirosfoundation/go-sifen/pkg/message"
)

var (
	// ErrInvalidTarget is returned for malformed URLs, disallowed schemes and
	// https targets without a TLS context
	ErrInvalidTarget = errors.New("invalid target")
	// ErrTransportIO is returned for network failures and timeouts
	ErrTransportIO = errors.New("transport I/O failure")
	// ErrMessaging is returned when the SOAP request cannot be built
	ErrMessaging = errors.New("messaging error")
)

// DefaultUserAgent is sent when Config.UserAgent is empty
const DefaultUserAgent = "go-sifen/1.0"

// Config holds the exchange settings
type Config struct {
	// TLS is shared by all exchanges and must not be modified after use.
	// https targets are rejected when it is nil.
	TLS            *tls.Config
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

// DefaultConfig returns the default timeouts with the default TLS options
func DefaultConfig() *Config {
	return &Config{
		TLS:            DefaultTLSOptions().Config(),
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    45 * time.Second,
		UserAgent:      DefaultUserAgent,
	}
}

// Client performs single SOAP exchanges. It keeps no connection pool;
// every exchange dials its own connection and closes it before returning.
type Client struct {
	config Config
	logger *slog.Logger
}

// NewClient creates a Client. Zero timeouts take the default values.
func NewClient(config *Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	c := *config
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: c, logger: logger}
}

// Request is a built SOAP request ready to be sent
type Request struct {
	URL     string
	Route   Route
	Payload []byte
}

// Result is the outcome of one round trip. Raw holds the response bytes as
// received, for error statuses as well.
type Result struct {
	HTTPStatus int
	Raw        []byte
	Header     http.Header
	Elapsed    time.Duration
}

// Prepare resolves the route for target and builds the SOAP envelope around
// body in the route's dialect
func (c *Client) Prepare(target string, body any) (*Request, error) {
	route, err := Resolve(target)
	if err != nil {
		return nil, err
	}
	payload, err := message.Build(route.Version, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessaging, err)
	}
	return &Request{URL: target, Route: route, Payload: payload}, nil
}

// Exchange sends an already serialized payload to target
func (c *Client) Exchange(ctx context.Context, target string, payload []byte) (*Result, error) {
	route, err := Resolve(target)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Request{URL: target, Route: route, Payload: payload})
}

// Do performs one POST. There are no retries.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || len(req.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty request", ErrMessaging)
	}
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: c.config.ConnectTimeout,
		}).DialContext,
		TLSClientConfig:       c.config.TLS,
		TLSHandshakeTimeout:   c.config.ConnectTimeout,
		ResponseHeaderTimeout: c.config.ReadTimeout,
		DisableKeepAlives:     req.Route.Close,
		MaxIdleConns:          1,
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: c.config.ConnectTimeout + c.config.ReadTimeout}

	c.logger.Debug("sending SOAP request",
		slog.String("url", req.URL),
		slog.String("route", req.Route.Name),
		slog.String("soap", req.Route.Version.String()),
		slog.Int("bytes", len(req.Payload)))

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	defer resp.Body.Close()

	// status >= 400 carries the fault document in the same stream
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransportIO, err)
	}
	result := &Result{
		HTTPStatus: resp.StatusCode,
		Raw:        raw,
		Header:     resp.Header.Clone(),
		Elapsed:    time.Since(start),
	}

	c.logger.Debug("received SOAP response",
		slog.String("url", req.URL),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u, err := parseTarget(req.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" && c.config.TLS == nil {
		return nil, fmt.Errorf("%w: https requires a TLS context", ErrInvalidTarget)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	// fixed length, never chunked
	httpReq.ContentLength = int64(len(req.Payload))

	route := req.Route
	httpReq.Header.Set("Content-Type", route.ContentType)
	httpReq.Header.Set("Accept", route.Accept)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if route.SendSOAPAction {
		httpReq.Header["SOAPAction"] = []string{route.SOAPAction}
	}
	if route.KeepAlive {
		httpReq.Header.Set("Connection", "keep-alive")
	}
	httpReq.Close = route.Close
	return httpReq, nil
}
