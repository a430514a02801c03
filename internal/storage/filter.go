package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oncall-sre/oncall/internal/oncallerr"
)

// Event list filtering: query parameters of the form `field` or
// `field__<op>` compile to parameterized SQL against a static column table.
// Unknown fields are rejected; values are always bound, never interpolated.

type filterColumn struct {
	expr    string
	numeric bool
}

var eventFilterColumns = map[string]filterColumn{
	"id":      {expr: "event.id", numeric: true},
	"start":   {expr: "event.start", numeric: true},
	"end":     {expr: "event.\"end\"", numeric: true},
	"team_id": {expr: "event.team_id", numeric: true},
	"role":    {expr: "role.name"},
	"team":    {expr: "team.name"},
	"user":    {expr: "\"user\".name"},
}

type filterOp struct {
	template string // with %s for column, %d for placeholder index
	like     string // "" | "contains" | "prefix" | "suffix"
}

var filterOps = map[string]filterOp{
	"eq":         {template: "%s = $%d"},
	"ne":         {template: "%s != $%d"},
	"lt":         {template: "%s < $%d"},
	"le":         {template: "%s <= $%d"},
	"gt":         {template: "%s > $%d"},
	"ge":         {template: "%s >= $%d"},
	"contains":   {template: "%s LIKE '%%' || $%d || '%%'", like: "contains"},
	"startswith": {template: "%s LIKE $%d || '%%'", like: "prefix"},
	"endswith":   {template: "%s LIKE '%%' || $%d", like: "suffix"},
}

// EventFilter is a compiled WHERE fragment plus its bound values. Team
// ownership clauses are kept apart from the rest so subscription pairs
// can widen the team constraint without escaping the other clauses.
type EventFilter struct {
	TeamClauses  []string
	OtherClauses []string
	Args         []any
}

// CompileEventFilter turns raw query parameters into an EventFilter.
// nextArg is the first free placeholder index ($1-based).
func CompileEventFilter(params map[string][]string, nextArg int) (*EventFilter, error) {
	f := &EventFilter{}
	// deterministic clause order for stable SQL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		if len(values) == 0 {
			continue
		}
		field, op := key, "eq"
		if i := strings.Index(key, "__"); i >= 0 {
			field, op = key[:i], key[i+2:]
		}
		col, ok := eventFilterColumns[field]
		if !ok {
			return nil, oncallerr.New(oncallerr.BadRequest, "invalid filter field: %s", field)
		}
		fop, ok := filterOps[op]
		if !ok {
			return nil, oncallerr.New(oncallerr.BadRequest, "invalid filter op: %s", op)
		}
		if col.numeric && fop.like != "" {
			return nil, oncallerr.New(oncallerr.BadRequest, "filter op %s not valid for %s", op, field)
		}

		raw := values[0]
		var arg any = raw
		if col.numeric {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, oncallerr.New(oncallerr.BadRequest, "invalid value for %s: %q", field, raw)
			}
			arg = n
		}
		clause := fmt.Sprintf(fop.template, col.expr, nextArg)
		if field == "team" || field == "team_id" {
			f.TeamClauses = append(f.TeamClauses, clause)
		} else {
			f.OtherClauses = append(f.OtherClauses, clause)
		}
		f.Args = append(f.Args, arg)
		nextArg++
	}
	return f, nil
}

// Where renders the final WHERE fragment. Subscribed (team, role) pairs
// become alternatives to the team constraint only; an event admitted via
// a subscription must still satisfy every other clause.
func (f *EventFilter) Where(subs []Subscription) (string, []any) {
	if f == nil {
		f = &EventFilter{}
	}
	args := append([]any{}, f.Args...)
	team := strings.Join(f.TeamClauses, " AND ")
	if team != "" && len(subs) > 0 {
		subClause, subArgs := SubscriptionClause(subs, len(args)+1)
		team = "(" + team + " OR " + subClause + ")"
		args = append(args, subArgs...)
	}
	clauses := make([]string, 0, len(f.OtherClauses)+1)
	if team != "" {
		clauses = append(clauses, team)
	}
	clauses = append(clauses, f.OtherClauses...)
	if len(clauses) == 0 {
		return "true", args
	}
	return strings.Join(clauses, " AND "), args
}

// SubscriptionClause extends a filter with an OR-group admitting events
// owned by subscribed (team, role) pairs, used by include_subscribed.
func SubscriptionClause(subs []Subscription, nextArg int) (string, []any) {
	if len(subs) == 0 {
		return "", nil
	}
	var parts []string
	var args []any
	for _, s := range subs {
		parts = append(parts, fmt.Sprintf("(event.team_id = $%d AND event.role_id = $%d)", nextArg, nextArg+1))
		args = append(args, s.TeamID, s.RoleID)
		nextArg += 2
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
