// Package ratelimit hands each external collaborator its own token-bucket
// request budget so one stage cannot starve another of capacity.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Budget is a shared request budget for one collaborator.
type Budget struct {
	lim *rate.Limiter
}

func New(perSecond float64, burst int) *Budget {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Budget{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or the context ends.
func (b *Budget) Wait(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.lim.Wait(ctx)
}
