package scm

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// maxRateLimitAttempts bounds the retry loop for 429 responses. The retry is
// driven by the limiter's next reading rather than a fixed backoff, but a
// persistently misbehaving server must not keep us in the loop forever.
const maxRateLimitAttempts = 3

// EnvRateLimitBuffer overrides the remaining-request reserve kept by header
// limiters.
const EnvRateLimitBuffer = "GITCENSUS_RATELIMIT_BUFFER"

// BufferFromEnv returns the configured rate-limit safety buffer, falling back
// to DefaultBuffer when unset or unparsable.
func BufferFromEnv() int {
	v := os.Getenv(EnvRateLimitBuffer)
	if v == "" {
		return DefaultBuffer
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Warn().Str("value", v).Msgf("ignoring invalid %s", EnvRateLimitBuffer)
		return DefaultBuffer
	}
	return n
}

// FetchOptions tunes one FetchAll call.
type FetchOptions struct {
	// Stop, when non-nil, is evaluated against each item in page order. The
	// first item it reports true for is out of the requested range, along
	// with everything after it; the page is truncated there and pagination
	// ends even if the platform advertises more pages.
	//
	// Precondition: the endpoint must return items in strictly monotonic
	// order by the filtered field. The engine does not verify this; on an
	// unsorted endpoint results are silently incomplete.
	Stop func(item gjson.Result) bool
}

// Get performs one throttled request and returns the page. This is the
// generic primitive adapters use for single-shot calls (enrichment, org
// probes). Non-2xx statuses come back as a *StatusError.
func (c *Client) Get(ctx context.Context, url string, lim Limiter) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	return c.doThrottled(ctx, req, lim)
}

// FetchAll executes one logical list request and transparently walks every
// page, throttled by lim and steered by pager. It returns the raw items; the
// caller maps them to canonical types.
func (c *Client) FetchAll(ctx context.Context, req *http.Request, pager Pager, lim Limiter, opts FetchOptions) ([]gjson.Result, error) {
	var out []gjson.Result
	for {
		page, err := c.doThrottled(ctx, req, lim)
		if err != nil {
			return nil, err
		}

		items := pager.Items(page)
		if opts.Stop != nil {
			for i, item := range items {
				if opts.Stop(item) {
					return append(out, items[:i]...), nil
				}
			}
		}
		out = append(out, items...)

		if !pager.HasMore(page) {
			return out, nil
		}
		if err := pager.Next(req, page); err != nil {
			return nil, err
		}
	}
}

// doThrottled runs one request through the limiter, retrying a bounded number
// of times when the platform answers 429. Each retry lets the limiter observe
// the error response first, so header-driven limiters sleep on the server's
// own reset reading.
func (c *Client) doThrottled(ctx context.Context, req *http.Request, lim Limiter) (*Page, error) {
	for attempt := 1; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.Do(req)
		if err != nil {
			return nil, err
		}
		lim.Observe(page)

		if page.Status == http.StatusTooManyRequests {
			if attempt >= maxRateLimitAttempts {
				return nil, errors.Errorf("still rate limited by %s after %d attempts", req.URL.Host, attempt)
			}
			log.Warn().
				Str("url", req.URL.String()).
				Int("attempt", attempt).
				Msg("got 429, retrying after rate limit window")
			continue
		}
		if page.Status < 200 || page.Status > 299 {
			return nil, &StatusError{Code: page.Status, URL: req.URL.String(), Body: string(page.Body)}
		}
		return page, nil
	}
}
