package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Client runs calls against one external service under a Policy.
type Client struct {
	name   string
	policy Policy
	logger *slog.Logger
	notify func(attempt int, err error, delay time.Duration)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotify is called before every wait between two attempts.
func WithNotify(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Client) {
		c.notify = fn
	}
}

func NewClient(name string, policy Policy, opts ...Option) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Client{
		name:   name,
		policy: policy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Policy() Policy {
	return c.policy
}

func (c *Client) backOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     c.policy.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.policy.MaxBackoff,
	}
}

// Call runs fn until it succeeds, fails permanently, or the policy runs out of attempts.
func Call[T any](ctx context.Context, c *Client, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	attempt := 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		attemptsTotal.WithLabelValues(c.name, operation).Inc()

		v, err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.DebugContext(ctx, "retrying service call",
				"client", c.name,
				"operation", operation,
				"attempt", attempt,
				"delay", delay,
				"error", err)
			if c.notify != nil {
				c.notify(attempt, err, delay)
			}
		}),
	)

	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	callDuration.WithLabelValues(c.name, operation, outcome).Observe(elapsed.Seconds())

	if c.policy.SlowThreshold > 0 && elapsed > c.policy.SlowThreshold {
		c.logger.WarnContext(ctx, "service call too slow",
			"client", c.name,
			"operation", operation,
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", c.policy.SlowThreshold.Milliseconds())
	}

	if err != nil {
		if IsTransient(err) && attempt >= c.policy.MaxAttempts {
			return result, fmt.Errorf("%s %s after %d attempts: %w: %w", c.name, operation, attempt, ErrRetriesExhausted, err)
		}
		return result, fmt.Errorf("%s %s: %w", c.name, operation, err)
	}
	return result, nil
}

const DefaultPageSize = 1000

// Cursor addresses one page of an offset-paginated collection.
type Cursor struct {
	Offset int
	Limit  int
}

type Page[T any] struct {
	Items []T
	// Done is an explicit end signal from the provider.
	Done bool
}

type PageFunc[T any] func(ctx context.Context, cursor Cursor) (Page[T], error)

// FetchAll lazily walks every page, each page fetch retried through Call.
// Iteration stops at a short page or when the provider signals Done. Ranging
// over the result again restarts from the first page. A pageSize below one
// means DefaultPageSize.
func FetchAll[T any](ctx context.Context, c *Client, operation string, pageSize int, fetch PageFunc[T]) iter.Seq2[T, error] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return func(yield func(T, error) bool) {
		cursor := Cursor{Offset: 0, Limit: pageSize}
		for {
			page, err := Call(ctx, c, operation, func(ctx context.Context) (Page[T], error) {
				return fetch(ctx, cursor)
			})
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}

			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}

			if page.Done || len(page.Items) < pageSize {
				return
			}
			cursor.Offset += pageSize
		}
	}
}

// Collect drains seq, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckResponse turns a non-2xx response into a *StatusError. The body is
// drained and closed in that case.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
