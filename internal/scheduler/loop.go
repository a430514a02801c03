package scheduler

import (
	"context"
	"time"
)

// Loop runs scheduling cycles until the context is cancelled. A cycle that
// overruns the interval starts the next one immediately.
func (e *Engine) Loop(ctx context.Context, cycle time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		started := timeNow()
		if err := e.RunOnce(ctx); err != nil {
			e.logger.Error().Err(err).Msg("scheduling cycle failed")
		}
		elapsed := time.Since(started)
		if elapsed >= cycle {
			e.logger.Warn().
				Dur("elapsed", elapsed).
				Dur("cycle", cycle).
				Msg("scheduling cycle overran its interval, skipping sleep")
			continue
		}
		e.logger.Info().
			Dur("elapsed", elapsed).
			Dur("sleep", cycle-elapsed).
			Msg("scheduling cycle finished")
		select {
		case <-ctx.Done():
			return
		case <-time.After(cycle - elapsed):
		}
	}
}
