package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oncall-sre/oncall/internal/notify"
	"github.com/oncall-sre/oncall/internal/storage"
)

// reminderLoop enqueues shift reminders for events entering the horizon,
// covering scheduler-created events that never pass through the mutation
// sink. Enqueues are idempotent on (user, type, send_time).
func (r *Runner) reminderLoop(ctx context.Context) {
	interval := time.Duration(r.cfg.Reminder.PollingInterval) * time.Second
	logger := r.logger.With().Str("worker", "reminder").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if err := r.sweepReminders(ctx); err != nil {
			logger.Error().Err(err).Msg("reminder sweep failed")
		}
	}
}

func (r *Runner) sweepReminders(ctx context.Context) error {
	now := timeNow().Unix()
	shifts, err := r.store.UpcomingReminderShifts(ctx, now, storage.Week)
	if err != nil {
		return err
	}
	for _, shift := range shifts {
		settings, err := r.store.ReminderSettings(ctx, shift.TeamID, shift.UserID, shift.Role)
		if err != nil {
			return err
		}
		for _, ns := range settings {
			if ns.TimeBefore == nil {
				continue
			}
			sendTime := shift.Start - *ns.TimeBefore
			if sendTime <= now {
				continue
			}
			queued, err := r.store.ReminderExists(ctx, ns.UserID, ns.TypeID, sendTime)
			if err != nil {
				return err
			}
			if queued {
				continue
			}
			change := &notify.EventChange{
				Team:     shift.Team,
				Roles:    []string{shift.Role},
				Start:    shift.Start,
				End:      shift.End,
				FullName: shift.FullName,
			}
			contextJSON, err := json.Marshal(change.Context())
			if err != nil {
				return err
			}
			err = r.store.Enqueue(ctx, &storage.QueuedNotification{
				UserID:   ns.UserID,
				ModeID:   ns.ModeID,
				TypeID:   ns.TypeID,
				SendTime: sendTime,
				Context:  string(contextJSON),
				Active:   true,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
