package storage

import (
	"context"
)

// Tx is the set of mutation operations available inside one transaction.
// Every event mutation, together with its audit row and notification
// enqueues, runs against a single Tx and commits or rolls back as a unit.
type Tx interface {
	// name -> row resolution; missing rows surface as Integrity errors
	// carrying a human-readable message ("role X not found").
	TeamByName(ctx context.Context, name string) (*Team, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	UserByName(ctx context.Context, name string) (*User, error)
	IsTeamMember(ctx context.Context, teamID, userID int64) (bool, error)

	EventByID(ctx context.Context, id int64) (*Event, error)
	EventsByLink(ctx context.Context, linkID string) ([]*Event, error)
	EventsByIDs(ctx context.Context, ids []int64) ([]*Event, error)

	InsertEvent(ctx context.Context, e *Event) (int64, error)
	UpdateEvent(ctx context.Context, id int64, upd EventUpdate, clearLink bool) error
	UpdateLinkedEvents(ctx context.Context, linkID string, upd EventUpdate, clearLink bool) error
	SetEventUser(ctx context.Context, id, userID int64, clearLink bool) error
	SetLinkUser(ctx context.Context, linkID string, userID int64) error
	SetEventBounds(ctx context.Context, id, start, end int64) error
	DeleteEvent(ctx context.Context, id int64) error
	DeleteEventsByLink(ctx context.Context, linkID string) error

	// notification & audit sink
	InsertAudit(ctx context.Context, a *AuditEntry) error
	SettingsForTeam(ctx context.Context, teamID int64, typeName string, roles []string) ([]*NotificationSetting, error)
	EnqueueNotification(ctx context.Context, n *QueuedNotification) error

	// scheduler emission; table selects the canonical event table or a
	// session-scoped preview table
	OverlappingEvents(ctx context.Context, table string, teamID, roleID, start, end int64) ([]*Event, error)
	BusyUserIDs(ctx context.Context, table string, teamID, start, end int64) (map[int64]bool, error)
	LastShiftEnds(ctx context.Context, teamID, roleID int64, before int64) (map[int64]int64, error)
	NextShiftStarts(ctx context.Context, teamID int64, after int64) (map[int64]int64, error)
	InsertEventInto(ctx context.Context, table string, e *Event) (int64, error)
	UpdateScheduleCursor(ctx context.Context, scheduleID, epoch, userID int64) error
	CreateTempEventTable(ctx context.Context, name string) error
	CopyTeamEvents(ctx context.Context, table string, teamID, from int64) error
	DeleteScheduleEventsFrom(ctx context.Context, scheduleID, from int64) error
	EventsFromTable(ctx context.Context, table string, teamID, start, end int64) ([]*Event, error)
}

// Store is the full persistence surface. The Postgres implementation under
// storage/postgres is the single backing store; engines and handlers
// declare the narrower slices of this they consume.
type Store interface {
	Close()
	InTx(ctx context.Context, fn func(Tx) error) error

	// auth
	ApplicationKey(ctx context.Context, name string) (string, error)
	Session(ctx context.Context, id int64) (*Session, error)
	CreateSession(ctx context.Context, userName string) (*Session, error)
	DeleteSession(ctx context.Context, id int64) error
	UserByName(ctx context.Context, name string) (*User, error)
	TeamByName(ctx context.Context, name string) (*Team, error)
	IsTeamAdmin(ctx context.Context, team, user string) (bool, error)
	IsTeamMemberByName(ctx context.Context, team, user string) (bool, error)
	IsTeamMemberByTeamID(ctx context.Context, teamID int64, user string) (bool, error)
	SharesAdminedTeam(ctx context.Context, challenger, target string) (bool, error)

	// events & calendar queries
	ListEvents(ctx context.Context, filter *EventFilter, subs []Subscription) ([]*Event, error)
	EventByID(ctx context.Context, id int64) (*Event, error)
	SubscriptionsOf(ctx context.Context, team string) ([]Subscription, error)
	CurrentOncall(ctx context.Context, team, role string) ([]*OncallShift, error)
	ServiceOncall(ctx context.Context, service, role string) ([]*OncallShift, error)
	UserContacts(ctx context.Context, userID int64) (map[string]string, error)
	EventsEndingAfter(ctx context.Context, principalType, principal string, cutoff int64, roles []string, includeSubscribed bool, excludedTeams []string) ([]*Event, error)

	// schedules
	ListSchedules(ctx context.Context, team, roster string) ([]*Schedule, error)
	ScheduleByID(ctx context.Context, id int64) (*Schedule, error)
	CreateSchedule(ctx context.Context, s *Schedule) (int64, error)
	UpdateSchedule(ctx context.Context, id int64, s *Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
	ActiveTeams(ctx context.Context) ([]*Team, error)
	SchedulesForTeam(ctx context.Context, teamID int64) ([]*Schedule, error)
	RosterInRotation(ctx context.Context, rosterID, teamID int64) ([]*RosterMember, error)

	// ical keys
	CreateIcalKey(ctx context.Context, k *IcalKey) error
	IcalKey(ctx context.Context, key string) (*IcalKey, error)
	IcalKeysByRequester(ctx context.Context, requester string) ([]*IcalKey, error)
	DeleteIcalKey(ctx context.Context, requester, key string) error

	// notification settings & queue
	SettingsForUser(ctx context.Context, user string) ([]*NotificationSetting, error)
	CreateSetting(ctx context.Context, s *NotificationSetting) (int64, error)
	UpdateSetting(ctx context.Context, id int64, s *NotificationSetting) error
	DeleteSetting(ctx context.Context, user string, id int64) error
	SearchQueue(ctx context.Context, user string, from, until int64) ([]*QueuedMessage, error)

	// notifier
	PollDue(ctx context.Context, now int64) ([]*QueuedMessage, error)
	MarkSent(ctx context.Context, id int64) error
	MarkUnsent(ctx context.Context, id int64) error
	UsersWithoutCallContact(ctx context.Context, now int64) ([]*User, error)
	ContactByUserName(ctx context.Context, user, mode string) (string, error)
	Enqueue(ctx context.Context, n *QueuedNotification) error
	ReminderSettings(ctx context.Context, teamID, userID int64, role string) ([]*NotificationSetting, error)
	ReminderExists(ctx context.Context, userID, typeID, sendTime int64) (bool, error)
	UpcomingReminderShifts(ctx context.Context, now, horizon int64) ([]*Event, error)
}
