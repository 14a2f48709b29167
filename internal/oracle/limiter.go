package oracle

import (
	"context"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// StepGate bounds how many oracle invocations a multichannel route may have
// in flight at once, plus an optional sustained-rate cap for environments
// sharing one oracle binary across many concurrent routes.
type StepGate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewStepGate builds a gate sized by ComputeRouteParallelism(stepCount). If
// AWMKIT_ORACLE_RATE_LIMIT (invocations/sec) is set, Acquire also waits on a
// token-bucket limiter at that sustained rate.
func NewStepGate(stepCount int) *StepGate {
	n := ComputeRouteParallelism(stepCount)
	g := &StepGate{sem: make(chan struct{}, n)}
	if perSec := oracleRateLimitEnv(); perSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSec), maxInt(1, n))
	}
	return g
}

// Acquire blocks until a concurrency slot is free (and, if configured, the
// sustained-rate limiter admits another invocation), or ctx is canceled.
func (g *StepGate) Acquire(ctx context.Context) (func(), error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-g.sem }, nil
}

func oracleRateLimitEnv() float64 {
	raw := strings.TrimSpace(os.Getenv("AWMKIT_ORACLE_RATE_LIMIT"))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
