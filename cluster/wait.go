package cluster

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval paces Wait when no interval is given.
const DefaultPollInterval = 500 * time.Millisecond

// Wait polls the job until its status is terminal and returns the final
// results. Polls are paced by a rate limiter, so the first one fires
// immediately and later ones at most once per interval. Wait returns early
// if ctx is done or a poll fails.
func Wait(ctx context.Context, c Client, name string, every time.Duration) (JobResults, error) {
	if every <= 0 {
		every = DefaultPollInterval
	}

	limiter := rate.NewLimiter(rate.Every(every), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return JobResults{}, err
		}

		res, err := c.Results(ctx, name)
		if err != nil {
			return JobResults{}, err
		}
		if res.Status.Terminal() {
			return res, nil
		}
	}
}
