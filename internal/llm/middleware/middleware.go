// Package middleware decorates a VisionClient with cross-cutting concerns
// (rate limiting, retries, timeouts, logging, hooks, metrics).
package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	llmclient "blueprintvision/internal/llm/client"
	"blueprintvision/internal/metrics"
)

type Middleware func(llmclient.VisionClient) llmclient.VisionClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.VisionClient, mws ...Middleware) llmclient.VisionClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// -------- Rate limiting --------

// RateLimit limits request rate. If rps <= 0, it is a no-op.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, rl: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next llmclient.VisionClient
	rl   *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }
func (c *rateLimited) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.GenerateVision(ctx, req)
}

// -------- Retry with exponential backoff --------

// Retry retries up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next llmclient.VisionClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }
func (r *retrying) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.GenerateVision(ctx, req)
		if err == nil {
			return out, nil
		}
		var pErr *llmclient.PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", last
}

// -------- Timeout --------

// WithTimeout bounds each call. d <= 0 disables it.
func WithTimeout(d time.Duration) Middleware {
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next llmclient.VisionClient
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }
func (t *timed) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GenerateVision(ctx, req)
}

// -------- Logging --------

// WithLogging logs request size and errors. nil uses a no-op logger.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next llmclient.VisionClient
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	fields := []zap.Field{
		zap.String("client", l.next.Name()),
		zap.String("stage", llmclient.StageFrom(ctx)),
		zap.String("tile", llmclient.TileFrom(ctx)),
	}
	l.log.Debug("vision request",
		append(fields, zap.Int("image_bytes", len(req.ImageData)), zap.Int("prompt_bytes", len(req.Prompt)))...)
	start := time.Now()
	out, err := l.next.GenerateVision(ctx, req)
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		l.log.Warn("vision error", append(fields, zap.Error(err))...)
		return out, err
	}
	l.log.Debug("vision response", append(fields, zap.Int("reply_bytes", len(out)))...)
	return out, nil
}

// -------- Metrics --------

// WithMetrics counts calls and observes latency per stage.
func WithMetrics() Middleware {
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		return &measured{next: next}
	}
}

type measured struct{ next llmclient.VisionClient }

func (m *measured) Name() string { return m.next.Name() }
func (m *measured) Close() error { return m.next.Close() }
func (m *measured) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	start := time.Now()
	out, err := m.next.GenerateVision(ctx, req)
	metrics.ObserveOracle(llmclient.StageFrom(ctx), start, err)
	return out, err
}
