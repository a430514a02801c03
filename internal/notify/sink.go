// Package notify writes audit rows and enqueues notifications as part of
// the same transaction as the event mutation that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncall-sre/oncall/internal/storage"
)

// Audit / notification action names; each has a matching
// notification_type row.
const (
	ActionEventCreated     = "event_created"
	ActionEventEdited      = "event_edited"
	ActionEventDeleted     = "event_deleted"
	ActionEventSwapped     = "event_swapped"
	ActionEventSubstituted = "event_substituted"
	ActionOncallReminder   = "oncall_reminder"
)

type Sink struct {
	logger zerolog.Logger
}

func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger.With().Str("component", "notify").Logger()}
}

// Affected identifies one user touched by a mutation.
type Affected struct {
	UserID   int64
	UserName string
}

// EventChange describes a committed mutation for the sink.
type EventChange struct {
	Action   string
	TeamID   int64
	Team     string
	Owner    string // audit owner: challenger user or application
	Roles    []string
	Affected []Affected
	Start    int64
	End      int64
	FullName string
	Note     string
}

// Context renders the template context stored with audit and queue rows.
func (c *EventChange) Context() map[string]any {
	role := ""
	if len(c.Roles) > 0 {
		role = c.Roles[0]
	}
	return map[string]any{
		"team":       c.Team,
		"role":       role,
		"full_name":  c.FullName,
		"start":      c.Start,
		"end":        c.End,
		"start_time": formatTime(c.Start),
		"end_time":   formatTime(c.End),
	}
}

func formatTime(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04 MST")
}

// Record writes the audit row and the notification queue rows for one
// mutation, inside the caller's transaction.
func (s *Sink) Record(ctx context.Context, tx storage.Tx, change *EventChange) error {
	contextJSON, err := json.Marshal(change.Context())
	if err != nil {
		return err
	}

	err = tx.InsertAudit(ctx, &storage.AuditEntry{
		TeamName:  change.Team,
		Owner:     change.Owner,
		Action:    change.Action,
		Timestamp: time.Now().Unix(),
		Context:   string(contextJSON),
	})
	if err != nil {
		return err
	}

	return s.enqueue(ctx, tx, change, string(contextJSON))
}

func (s *Sink) enqueue(ctx context.Context, tx storage.Tx, change *EventChange, contextJSON string) error {
	if len(change.Affected) == 0 {
		return nil
	}
	involved := make(map[int64]bool, len(change.Affected))
	for _, a := range change.Affected {
		involved[a.UserID] = true
	}

	// every setting on the team is a candidate; only_if_involved is the
	// per-user opt-out for changes that did not touch them
	settings, err := tx.SettingsForTeam(ctx, change.TeamID, change.Action, change.Roles)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, ns := range settings {
		if ns.OnlyIfInvolved != nil && *ns.OnlyIfInvolved && !involved[ns.UserID] {
			continue
		}
		sendTime := now
		if ns.IsReminder {
			if ns.TimeBefore == nil {
				continue
			}
			sendTime = change.Start - *ns.TimeBefore
			// a reminder that would already be late is dropped
			if sendTime <= now {
				continue
			}
		}
		err := tx.EnqueueNotification(ctx, &storage.QueuedNotification{
			UserID:   ns.UserID,
			ModeID:   ns.ModeID,
			TypeID:   ns.TypeID,
			SendTime: sendTime,
			Context:  contextJSON,
			Active:   true,
			Sent:     false,
		})
		if err != nil {
			return err
		}
		s.logger.Debug().
			Str("user", ns.User).
			Str("mode", ns.Mode).
			Str("type", ns.Type).
			Int64("send_time", sendTime).
			Msg("notification enqueued")
	}
	return nil
}
