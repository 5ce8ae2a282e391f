package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"whatscrm/internal/models"
	"whatscrm/internal/retry"
	"whatscrm/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 10 * time.Second
	breakerMaxFailures    = 5
	breakerResetTimeout   = 30 * time.Second
	maxErrorBodyBytes     = 512
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body,
// prefixed with "sha256=", in the format Meta signs its own webhook
// deliveries with. Receivers verify it with the target's shared secret.
const SignatureHeader = "X-Hub-Signature-256"

// Target is one outbound dispatch destination.
type Target struct {
	Name   string
	URL    string
	Secret string
}

func (t Target) displayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}

// Client posts integration events to every configured target. Each
// target gets its own circuit breaker so one dead endpoint cannot eat
// the retry budget of the others. The target list can be swapped at
// runtime with UpdateTargets.
type Client struct {
	mu       sync.RWMutex
	targets  []Target
	client   *http.Client
	backoff  *retry.Backoff
	breakers map[string]*circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewClient(targets []Target, httpClient *http.Client, backoffCfg retry.BackoffConfig, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(targets))
	for _, target := range targets {
		breakers[target.URL] = circuitbreaker.NewWithLogger(target.displayName(), breakerMaxFailures, breakerResetTimeout, logger)
	}

	return &Client{
		targets:  targets,
		client:   httpClient,
		backoff:  retry.NewBackoff(backoffCfg),
		breakers: breakers,
		logger:   logger,
	}
}

// Send delivers one event to all targets. Delivery failures are
// collected per target so one unreachable endpoint never blocks the
// rest; the combined error is for the caller's log only.
func (c *Client) Send(ctx context.Context, event models.IntegrationEvent) error {
	// Snapshot targets together with their breakers so a concurrent
	// UpdateTargets cannot leave a send holding a target whose breaker
	// was already dropped from the map.
	c.mu.RLock()
	targets := make([]Target, len(c.targets))
	copy(targets, c.targets)
	breakers := make([]*circuitbreaker.CircuitBreaker, len(c.targets))
	for i, target := range c.targets {
		breakers[i] = c.breakers[target.URL]
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var failed []string
	for i, target := range targets {
		if err := c.deliver(ctx, target, breakers[i], body); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"target":  target.displayName(),
				"eventId": event.EventID,
			}).Warn("Failed to deliver event to dispatch target")
			failed = append(failed, target.displayName())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to deliver event to %s", strings.Join(failed, ", "))
	}
	return nil
}

// UpdateTargets replaces the dispatch target list. Breakers for URLs
// that survive the swap keep their state; removed targets drop theirs.
func (c *Client) UpdateTargets(targets []Target) {
	c.mu.Lock()
	defer c.mu.Unlock()

	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(targets))
	for _, target := range targets {
		if br, ok := c.breakers[target.URL]; ok {
			breakers[target.URL] = br
			continue
		}
		breakers[target.URL] = circuitbreaker.NewWithLogger(target.displayName(), breakerMaxFailures, breakerResetTimeout, c.logger)
	}

	c.targets = targets
	c.breakers = breakers
}

func (c *Client) deliver(ctx context.Context, target Target, breaker *circuitbreaker.CircuitBreaker, body []byte) error {
	return breaker.Execute(ctx, func(ctx context.Context) error {
		return c.backoff.RetryWithPredicate(ctx, func() error {
			return c.post(ctx, target, body)
		}, isRetryable)
	})
}

func (c *Client) post(ctx context.Context, target Target, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if target.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, target.Secret))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return nil
}

// BreakerStats reports the state of every target's circuit breaker.
func (c *Client) BreakerStats() []circuitbreaker.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]circuitbreaker.Stats, 0, len(c.targets))
	for _, target := range c.targets {
		stats = append(stats, c.breakers[target.URL].GetStats())
	}
	return stats
}

// Sign computes the signature header value for a payload.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// DeliveryError is a non-2xx response from a dispatch target.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("dispatch target returned status %d: %s", e.StatusCode, e.Body)
}

// isRetryable treats transport errors and server-side failures as
// transient. Other 4xx responses mean the request itself is bad and
// will not improve with repetition.
func isRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		if de.StatusCode == http.StatusRequestTimeout || de.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return de.StatusCode >= http.StatusInternalServerError
	}
	return true
}
