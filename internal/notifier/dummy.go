package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

// Dummy logs messages instead of delivering them. It claims the plain
// contact modes so a bare install works without external services.
type Dummy struct {
	logger zerolog.Logger
}

func NewDummy(logger zerolog.Logger) *Dummy {
	return &Dummy{logger: logger.With().Str("messenger", "dummy").Logger()}
}

func (d *Dummy) Modes() []string {
	return []string{"email", "sms", "call", "slack"}
}

func (d *Dummy) Send(ctx context.Context, msg *Message) error {
	d.logger.Info().
		Str("user", msg.User).
		Str("mode", msg.Mode).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("sent message")
	return nil
}
