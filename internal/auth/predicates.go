package auth

import (
	"context"
	"time"

	"github.com/oncall-sre/oncall/internal/oncallerr"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

func (m *Manager) bypass(p *Principal) bool {
	if !m.cfg.RequireAuth || m.cfg.Debug {
		return true
	}
	return p.IsApp() || (p != nil && p.God)
}

// CheckUserAuth allows a user to act on target if they are target, or admin
// some team containing target.
func (m *Manager) CheckUserAuth(ctx context.Context, p *Principal, target string) error {
	if m.bypass(p) {
		return nil
	}
	if p == nil {
		return oncallerr.New(oncallerr.Unauthorized, "Authentication required")
	}
	if p.UserName == target {
		return nil
	}
	ok, err := m.store.SharesAdminedTeam(ctx, p.UserName, target)
	if err != nil {
		return err
	}
	if !ok {
		return oncallerr.New(oncallerr.Unauthorized, "Action not allowed: %q is not allowed to modify user %q", p.UserName, target)
	}
	return nil
}

// CheckTeamAuth requires the principal to be an admin of the team.
func (m *Manager) CheckTeamAuth(ctx context.Context, p *Principal, team string) error {
	if m.bypass(p) {
		return nil
	}
	if p == nil {
		return oncallerr.New(oncallerr.Unauthorized, "Authentication required")
	}
	ok, err := m.store.IsTeamAdmin(ctx, team, p.UserName)
	if err != nil {
		return err
	}
	if !ok {
		return oncallerr.New(oncallerr.Unauthorized, "Action not allowed: %q is not an admin for %q", p.UserName, team)
	}
	return nil
}

// CheckCalendarAuth requires the principal to be a member of the team.
func (m *Manager) CheckCalendarAuth(ctx context.Context, p *Principal, team string) error {
	if m.bypass(p) {
		return nil
	}
	if p == nil {
		return oncallerr.New(oncallerr.Unauthorized, "Authentication required")
	}
	ok, err := m.store.IsTeamMemberByName(ctx, team, p.UserName)
	if err != nil {
		return err
	}
	if !ok {
		return oncallerr.New(oncallerr.Unauthorized, "Action not allowed: %q is not a member of %q", p.UserName, team)
	}
	return nil
}

func (m *Manager) CheckCalendarAuthByID(ctx context.Context, p *Principal, teamID int64) error {
	if m.bypass(p) {
		return nil
	}
	if p == nil {
		return oncallerr.New(oncallerr.Unauthorized, "Authentication required")
	}
	ok, err := m.store.IsTeamMemberByTeamID(ctx, teamID, p.UserName)
	if err != nil {
		return err
	}
	if !ok {
		return oncallerr.New(oncallerr.Unauthorized, "Action not allowed: %q is not a member of team %d", p.UserName, teamID)
	}
	return nil
}
