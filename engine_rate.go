package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/hollis-dev/authcore/rate"
)

// CheckRate applies sliding-window rate limiting for the identifier. Limit
// and window are caller-supplied on every call; named presets are a
// configuration concern of the route layer.
func (e *Engine) CheckRate(ctx context.Context, identifier string, limit int, window time.Duration) (rate.Result, error) {
	res, err := e.limiter.Check(ctx, identifier, limit, window)
	if err == nil && !res.Allowed {
		e.emit(ctx, EventRateLimited, "", "", false, errors.New("limit exceeded: "+identifier))
	}
	return res, err
}

// CheckRateSimple applies the cheaper fixed-window variant, suitable for
// coarse endpoint protection where boundary bursts are acceptable.
func (e *Engine) CheckRateSimple(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	allowed, err := e.limiter.CheckSimple(ctx, identifier, limit, window)
	if err == nil && !allowed {
		e.emit(ctx, EventRateLimited, "", "", false, errors.New("limit exceeded: "+identifier))
	}
	return allowed, err
}

// ResetRate clears all recorded requests for the identifier.
func (e *Engine) ResetRate(ctx context.Context, identifier string) error {
	return e.limiter.Reset(ctx, identifier)
}
