package scm

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// resetMargin is added on top of the server's reset instant before resuming,
// to absorb clock skew between us and the platform.
const resetMargin = 10 * time.Second

// DefaultBuffer is how many remaining requests we keep in reserve before
// sleeping. Overridable through GITCENSUS_RATELIMIT_BUFFER.
const DefaultBuffer = 5

// RateLimitStatus is the budget reading taken from the most recent response.
// It is transient; the limiter replaces it on every observed response.
type RateLimitStatus struct {
	Remaining int
	Reset     time.Time
}

// Limiter gates outgoing requests against a platform's rate-limit contract.
// Wait blocks until a request may be sent; Observe feeds each response back
// so header-driven limiters can update their view of the budget.
type Limiter interface {
	Wait(ctx context.Context) error
	Observe(p *Page)
}

// NopLimiter never blocks. Used by the local-filesystem adapter and tests.
type NopLimiter struct{}

func (NopLimiter) Wait(context.Context) error { return nil }
func (NopLimiter) Observe(*Page)              {}

// HeaderLimiter is the reactive strategy: it trusts the platform's rate-limit
// response headers. When the remaining budget falls to the buffer it sleeps
// until the advertised reset instant plus a safety margin. With no reading
// cached yet it primes itself from a dedicated status endpoint, when the
// platform has one.
type HeaderLimiter struct {
	RemainingHeader string
	ResetHeader     string
	// StatusURL is the platform's rate-limit status endpoint, or "" when it
	// has none. The endpoint must answer with the same headers.
	StatusURL string
	// Buffer is the remaining-request reserve. Zero means DefaultBuffer.
	Buffer int

	client *Client
	last   *RateLimitStatus

	// test seams
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewHeaderLimiter builds a reactive limiter that primes itself through
// client when statusURL is non-empty.
func NewHeaderLimiter(client *Client, remainingHeader, resetHeader, statusURL string, buffer int) *HeaderLimiter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &HeaderLimiter{
		RemainingHeader: remainingHeader,
		ResetHeader:     resetHeader,
		StatusURL:       statusURL,
		Buffer:          buffer,
		client:          client,
		sleep:           sleepCtx,
		now:             time.Now,
	}
}

func (l *HeaderLimiter) Wait(ctx context.Context) error {
	if l.last == nil && l.StatusURL != "" {
		l.prime(ctx)
	}
	if l.last == nil {
		return nil
	}
	if l.last.Remaining > l.Buffer {
		return nil
	}

	wake := l.last.Reset.Add(resetMargin)
	d := wake.Sub(l.now())
	if d < 0 {
		d = 0
	}
	log.Warn().
		Int("remaining", l.last.Remaining).
		Time("reset", l.last.Reset).
		Dur("sleep", d).
		Msg("rate limit budget exhausted, sleeping until reset")
	if err := l.sleep(ctx, d); err != nil {
		return err
	}
	// Force a fresh reading before the next breach check.
	l.last = nil
	return nil
}

func (l *HeaderLimiter) Observe(p *Page) {
	remaining := p.Header.Get(l.RemainingHeader)
	reset := p.Header.Get(l.ResetHeader)
	if remaining == "" || reset == "" {
		return
	}
	rem, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}
	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return
	}
	l.last = &RateLimitStatus{Remaining: rem, Reset: time.Unix(epoch, 0)}
}

// prime fetches the status endpoint and reads the budget off its headers.
// Failure is not fatal; we fall back to reacting to real responses.
func (l *HeaderLimiter) prime(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.StatusURL, nil)
	if err != nil {
		return
	}
	p, err := l.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", l.StatusURL).Msg("rate limit status fetch failed")
		return
	}
	l.Observe(p)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
