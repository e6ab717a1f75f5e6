package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mahdiidarabi/vanity-ssh/internal/pkg/json"
	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultServer receives notifications addressed to a bare topic.
	DefaultServer = "https://ntfy.sh"
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	defaultTimeout         = 10 * time.Second
	defaultInitialInterval = 500 * time.Millisecond
	title                  = "vanity-ssh"
)

type ntfyMessage struct {
	Topic   string   `json:"topic"`
	Message string   `json:"message"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type natsMessage struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Client delivers match notifications over ntfy (HTTP) or NATS.
type Client struct {
	httpClient      *http.Client
	server          string
	maxRetries      uint64
	initialInterval time.Duration
	logger          *slog.Logger
	attempts        metric.Int64Counter
}

// NewClient creates a client with default settings.
func NewClient() *Client {
	attempts, _ := otel.Meter("github.com/mahdiidarabi/vanity-ssh/notify").
		Int64Counter("vanity_notify_attempts_total")
	return &Client{
		httpClient:      &http.Client{Timeout: defaultTimeout},
		server:          DefaultServer,
		maxRetries:      DefaultMaxRetries,
		initialInterval: defaultInitialInterval,
		logger:          slog.Default(),
		attempts:        attempts,
	}
}

// WithHTTPClient sets the HTTP client used for ntfy.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithServer sets the ntfy server used for bare topics.
func (c *Client) WithServer(server string) *Client {
	if server != "" {
		c.server = strings.TrimRight(server, "/")
	}
	return c
}

// WithRetry sets the retry budget and the first backoff interval.
func (c *Client) WithRetry(maxRetries uint64, initial time.Duration) *Client {
	c.maxRetries = maxRetries
	if initial > 0 {
		c.initialInterval = initial
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Notify sends message to endpoint, retrying transient failures with
// exponential backoff. Client errors (HTTP 4xx) are not retried.
func (c *Client) Notify(ctx context.Context, endpoint, message string) error {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if ep.Kind == KindNtfy && ep.Server == "" {
		ep.Server = c.server
	}

	// One id per notification so receivers can drop retried duplicates.
	id := uuid.NewString()
	op := func() error {
		c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", ep.Kind.String())))
		if ep.Kind == KindNATS {
			return c.publishNATS(ctx, ep, id, message)
		}
		return c.publishNtfy(ctx, ep, id, message)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)

	err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		c.logger.Warn("notification failed, retrying", "endpoint", ep.String(), "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", ep, err)
	}
	c.logger.Debug("notification sent", "endpoint", ep.String(), "id", id)
	return nil
}

func (c *Client) publishNtfy(ctx context.Context, ep Endpoint, id, message string) error {
	body, err := json.Marshal(ntfyMessage{
		Topic:   ep.Topic,
		Message: message,
		Title:   title,
		Tags:    []string{"key"},
	})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.Server, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("ntfy returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	default:
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}
}

func (c *Client) publishNATS(ctx context.Context, ep Endpoint, id, message string) error {
	timeout := defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return backoff.Permanent(context.DeadlineExceeded)
	}

	nc, err := nats.Connect(ep.Server, nats.Name(title), nats.Timeout(timeout), nats.NoReconnect())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", ep.Server, err)
	}
	defer nc.Close()

	data, err := json.Marshal(natsMessage{ID: id, Message: message, Time: time.Now().UTC()})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode message: %w", err))
	}

	msg := nats.NewMsg(ep.Topic)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, id)
	if err := nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ep.Topic, err)
	}
	return nc.FlushTimeout(timeout)
}
