package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/oncallerr"
)

// Message is one formatted notification ready for delivery.
type Message struct {
	User    string
	Mode    string
	Subject string
	Body    string
}

// Messenger delivers messages for the contact modes it supports.
type Messenger interface {
	Modes() []string
	Send(ctx context.Context, msg *Message) error
}

// ContactLookup resolves a user's destination for a contact mode.
type ContactLookup interface {
	ContactByUserName(ctx context.Context, user, mode string) (string, error)
}

// Registry routes messages to the messenger registered for their mode.
// With skipSend every message is dropped after logging.
type Registry struct {
	byMode   map[string]Messenger
	skipSend bool
	logger   zerolog.Logger
}

func NewRegistry(cfgs []config.MessengerConfig, skipSend bool, contacts ContactLookup, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		byMode:   make(map[string]Messenger),
		skipSend: skipSend,
		logger:   logger.With().Str("component", "messengers").Logger(),
	}
	for _, mc := range cfgs {
		var m Messenger
		switch mc.Type {
		case "dummy":
			m = NewDummy(r.logger)
		case "rocketchat":
			m = NewRocketChat(mc, contacts)
		default:
			return nil, fmt.Errorf("unknown messenger type %q", mc.Type)
		}
		for _, mode := range m.Modes() {
			r.byMode[mode] = m
		}
	}
	return r, nil
}

func (r *Registry) Send(ctx context.Context, msg *Message) error {
	if r.skipSend {
		r.logger.Info().
			Str("user", msg.User).
			Str("mode", msg.Mode).
			Str("subject", msg.Subject).
			Msg("skipsend enabled, dropping message")
		return nil
	}
	m, ok := r.byMode[msg.Mode]
	if !ok {
		return oncallerr.New(oncallerr.Upstream, "no messenger configured for mode %q", msg.Mode)
	}
	return m.Send(ctx, msg)
}
