package notifier

import (
	"context"
	"time"
)

// validatorLoop flags users who hold future shifts but cannot be paged.
// It sleeps before the first pass so a crash-looping process does not spam.
func (r *Runner) validatorLoop(ctx context.Context) {
	interval := time.Duration(r.cfg.UserValidator.Interval) * time.Second
	logger := r.logger.With().Str("worker", "user_validator").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		users, err := r.store.UsersWithoutCallContact(ctx, timeNow().Unix())
		if err != nil {
			logger.Error().Err(err).Msg("user validation poll failed")
			continue
		}
		for _, u := range users {
			logger.Warn().Str("user", u.Name).Msg("user has upcoming events but no call contact")
			msg := &Message{
				User:    u.Name,
				Mode:    "email",
				Subject: r.cfg.UserValidator.Subject,
				Body:    r.cfg.UserValidator.Body,
			}
			if err := r.messengers.Send(ctx, msg); err != nil {
				logger.Error().Err(err).Str("user", u.Name).Msg("failed to send validation message")
			}
		}
	}
}
