package scm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Reservoir is the proactive strategy: a client-side token bucket that refills
// to its capacity once per hour and spaces requests out by at least
// hour/capacity. It never looks at response headers; the budget is purely
// conservative bookkeeping on our side. The mutex keeps one caller in flight
// at a time, which is also the engine's ordering guarantee.
type Reservoir struct {
	capacity int
	interval time.Duration

	mu          sync.Mutex
	tokens      int
	refilledAt  time.Time
	lastRequest time.Time

	// test seams
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewReservoir builds a reservoir allowing requestsPerHour requests.
func NewReservoir(requestsPerHour int) *Reservoir {
	return &Reservoir{
		capacity: requestsPerHour,
		interval: time.Hour / time.Duration(requestsPerHour),
		tokens:   requestsPerHour,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func (r *Reservoir) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.refilledAt.IsZero() {
		r.refilledAt = now
	}
	if now.Sub(r.refilledAt) >= time.Hour {
		r.tokens = r.capacity
		r.refilledAt = now
	}

	if r.tokens <= 0 {
		wake := r.refilledAt.Add(time.Hour)
		d := wake.Sub(now)
		if d < 0 {
			d = 0
		}
		log.Warn().
			Int("capacity", r.capacity).
			Dur("sleep", d).
			Msg("request reservoir drained, waiting for hourly refill")
		if err := r.sleep(ctx, d); err != nil {
			return err
		}
		r.tokens = r.capacity
		r.refilledAt = r.now()
	}

	if !r.lastRequest.IsZero() {
		if gap := r.interval - r.now().Sub(r.lastRequest); gap > 0 {
			if err := r.sleep(ctx, gap); err != nil {
				return err
			}
		}
	}

	r.tokens--
	r.lastRequest = r.now()
	return nil
}

// Observe is a no-op: the reservoir does not trust server headers.
func (r *Reservoir) Observe(*Page) {}
