package upstream

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kabu-tools/stockdata/internal/models"
)

// RetryPolicy wraps a single-attempt fetch with bounded exponential
// backoff. Only transport and provider failures are retried; a fetch that
// succeeds with zero rows is a terminal "no data" result.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is
// cancelled. The delay between attempts grows exponentially from MinWait
// and is capped at MaxWait.
func (p RetryPolicy) Do(ctx context.Context, op func() ([]models.Bar, error)) ([]models.Bar, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinWait
	b.MaxInterval = p.MaxWait
	b.MaxElapsedTime = 0

	var bars []models.Bar
	err := backoff.Retry(func() error {
		var err error
		bars, err = op()
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	if err != nil {
		return nil, err
	}
	return bars, nil
}
