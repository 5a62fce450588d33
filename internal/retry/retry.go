package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config bounds the exponential backoff applied between attempts.
type Config struct {
	MaxRetries   int           // additional attempts after the first
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0..1, fraction of the delay used as +/- jitter
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = 0.2
	}
	return c
}

// HTTPError carries a status code through the adapter boundary so the
// classifier can tell transient upstream failures from permanent ones.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// NonRetryableError marks an error that must never be retried (parse,
// validation, persistence failures).
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so the handler fails fast on it.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// Handler retries a single operation with bounded exponential backoff
// and jitter. Safe for concurrent use.
type Handler struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config) *Handler {
	return &Handler{
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute runs op, retrying retryable failures up to MaxRetries extra
// attempts. It never sleeps after the final attempt. The returned error
// is wrapped with label so callers can tell which operation exhausted
// its budget.
func (h *Handler) Execute(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := h.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			break
		}
		if err := h.sleep(ctx, h.delay(attempt)); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	return fmt.Errorf("%s: %w", label, lastErr)
}

// delay computes min(maxDelay, initial*multiplier^(attempt-1)) with
// +/- JitterFactor jitter, floored at zero.
func (h *Handler) delay(attempt int) time.Duration {
	d := float64(h.cfg.InitialDelay) * math.Pow(h.cfg.Multiplier, float64(attempt-1))
	if d > float64(h.cfg.MaxDelay) {
		d = float64(h.cfg.MaxDelay)
	}
	if h.cfg.JitterFactor > 0 {
		h.mu.Lock()
		f := (h.rnd.Float64()*2 - 1) * h.cfg.JitterFactor // [-jf, +jf)
		h.mu.Unlock()
		d += d * f
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Operation is one unit of an ExecuteAll fan-out.
type Operation struct {
	Label string
	Do    func(ctx context.Context) error
}

type OpResult struct {
	Label string
	Err   error
}

func (r OpResult) Success() bool { return r.Err == nil }

// BatchOptions bounds an ExecuteAll fan-out.
type BatchOptions struct {
	Concurrency     int  // max operations in flight; <=0 means serial
	ContinueOnError bool // keep going past individual failures
}

// ExecuteAll runs every operation through Execute, fanning out with
// bounded concurrency. Results are returned in operation order, so a
// caller reducing chunk results can rely on index order regardless of
// completion order. With ContinueOnError false, operations that have
// not started when the first failure lands are skipped with a
// cancellation error.
func (h *Handler) ExecuteAll(ctx context.Context, ops []Operation, opts BatchOptions) []OpResult {
	results := make([]OpResult, len(ops))
	if len(ops) == 0 {
		return results
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if !opts.ContinueOnError {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(ops) {
		workers = len(ops)
	}

	var wg sync.WaitGroup
	idxCh := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				op := ops[i]
				err := h.Execute(runCtx, op.Label, op.Do)
				results[i] = OpResult{Label: op.Label, Err: err}
				if err != nil && cancel != nil {
					cancel()
				}
			}
		}()
	}
	for i := range ops {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()
	return results
}

// IsRetryable classifies an error. Rate limits, timeouts, transient
// network failures and 5xx responses are retryable; everything else,
// including parse, validation and persistence errors, is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *NonRetryableError
	if errors.As(err, &nr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Fall back to message heuristics for providers that only surface
	// strings.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "too many requests", "429",
		"timeout", "timed out", "deadline exceeded",
		"connection reset", "connection refused", "broken pipe", "eof",
		"bad gateway", "service unavailable", "gateway timeout",
		"internal server error", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
