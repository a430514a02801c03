// Package notifier drains the notification queue and delivers messages
// through the configured messengers. A single poller feeds a bounded
// channel; a pool of senders formats and sends. Delivery failure is
// terminal: the row is deactivated without retry.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/storage"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

type Runner struct {
	store      storage.Store
	messengers *Registry
	cfg        *config.Config
	logger     zerolog.Logger

	sendQueue chan *storage.QueuedMessage

	mu       sync.Mutex
	inFlight map[int64]bool
}

func New(store storage.Store, messengers *Registry, cfg *config.Config, logger zerolog.Logger) *Runner {
	return &Runner{
		store:      store,
		messengers: messengers,
		cfg:        cfg,
		logger:     logger.With().Str("component", "notifier").Logger(),
		sendQueue:  make(chan *storage.QueuedMessage, cfg.Notifier.Workers*2),
		inFlight:   make(map[int64]bool),
	}
}

// Run polls and delivers until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Notifier.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.sender(ctx)
		}()
	}
	if r.cfg.Reminder.Activated {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.reminderLoop(ctx)
		}()
	}
	if r.cfg.UserValidator.Activated {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.validatorLoop(ctx)
		}()
	}

	r.logger.Info().Msg("notifier bootstrapped")
	interval := time.Duration(r.cfg.Notifier.PollInterval) * time.Second
	for {
		started := timeNow()
		r.poll(ctx)
		elapsed := time.Since(started)
		nap := interval - elapsed
		if nap < 0 {
			nap = 0
		}
		r.logger.Info().
			Dur("elapsed", elapsed).
			Dur("sleep", nap).
			Msg("notifier loop finished")
		select {
		case <-ctx.Done():
			close(r.sendQueue)
			wg.Wait()
			return
		case <-time.After(nap):
		}
	}
}

// poll pushes every due queue row onto the send channel. Rows already
// handed to a sender are skipped so a slow delivery is not double-sent by
// the next poll.
func (r *Runner) poll(ctx context.Context) {
	msgs, err := r.store.PollDue(ctx, timeNow().Unix())
	if err != nil {
		r.logger.Error().Err(err).Msg("polling notification queue failed")
		return
	}
	for _, msg := range msgs {
		r.mu.Lock()
		if r.inFlight[msg.ID] {
			r.mu.Unlock()
			continue
		}
		r.inFlight[msg.ID] = true
		r.mu.Unlock()

		select {
		case r.sendQueue <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) sender(ctx context.Context) {
	for msg := range r.sendQueue {
		r.deliver(ctx, msg)
		r.mu.Lock()
		delete(r.inFlight, msg.ID)
		r.mu.Unlock()
	}
}

func (r *Runner) deliver(ctx context.Context, msg *storage.QueuedMessage) {
	tplContext, err := decodeContext(msg.Context)
	if err != nil {
		r.logger.Error().Err(err).Int64("id", msg.ID).Msg("bad notification context")
		r.markUnsent(ctx, msg.ID)
		return
	}
	out := &Message{
		User:    msg.User,
		Mode:    msg.Mode,
		Subject: renderTemplate(msg.Subject, tplContext),
		Body:    renderTemplate(msg.Body, tplContext),
	}
	if err := r.messengers.Send(ctx, out); err != nil {
		r.logger.Error().Err(err).
			Str("user", out.User).
			Str("mode", out.Mode).
			Msg("failed to send message")
		r.markUnsent(ctx, msg.ID)
		return
	}
	if err := r.store.MarkSent(ctx, msg.ID); err != nil {
		r.logger.Error().Err(err).Int64("id", msg.ID).Msg("marking message sent failed")
	}
}

func (r *Runner) markUnsent(ctx context.Context, id int64) {
	if err := r.store.MarkUnsent(ctx, id); err != nil {
		r.logger.Error().Err(err).Int64("id", id).Msg("marking message unsent failed")
	}
}

// decodeContext keeps numbers as json.Number so epoch values render as
// integers in templates.
func decodeContext(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
