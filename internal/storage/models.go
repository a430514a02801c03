package storage

type Team struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Active             bool    `json:"active"`
	SchedulingTimezone string  `json:"scheduling_timezone"`
	OverridePhone      *string `json:"override_phone_number,omitempty"`
	Description        *string `json:"description,omitempty"`
}

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	TimeZone string `json:"time_zone"`
	PhotoURL string `json:"photo_url,omitempty"`
	Active   bool   `json:"active"`
	God      bool   `json:"god"`
}

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Roster struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	TeamID int64  `json:"team_id"`
}

// RosterMember is one roster_user row joined to its user.
type RosterMember struct {
	UserID     int64  `json:"user_id"`
	UserName   string `json:"user"`
	InRotation bool   `json:"in_rotation"`
	Priority   int    `json:"roster_priority"`
}

// ScheduleEvent is one weekly (offset, duration) entry of a schedule
// template, both in seconds. Offsets are interpreted in the team's
// scheduling timezone.
type ScheduleEvent struct {
	Start    int64 `json:"start"`
	Duration int64 `json:"duration"`
}

type Schedule struct {
	ID                    int64           `json:"id"`
	TeamID                int64           `json:"team_id"`
	Team                  string          `json:"team"`
	RosterID              int64           `json:"roster_id"`
	Roster                string          `json:"roster"`
	RoleID                int64           `json:"role_id"`
	Role                  string          `json:"role"`
	AutoPopulateThreshold int             `json:"auto_populate_threshold"`
	AdvancedMode          bool            `json:"advanced_mode"`
	Timezone              string          `json:"timezone"`
	Scheduler             SchedulerInfo   `json:"scheduler"`
	Events                []ScheduleEvent `json:"events"`
	LastEpochScheduled    *int64          `json:"last_epoch_scheduled,omitempty"`
	LastScheduledUserID   *int64          `json:"last_scheduled_user_id,omitempty"`
}

// SchedulerInfo names the populating algorithm and, for round-robin, the
// ordered user list it cycles through.
type SchedulerInfo struct {
	Name string   `json:"name"`
	Data []string `json:"data,omitempty"`
}

type Event struct {
	ID         int64   `json:"id"`
	TeamID     int64   `json:"team_id"`
	Team       string  `json:"team,omitempty"`
	RoleID     int64   `json:"role_id"`
	Role       string  `json:"role,omitempty"`
	UserID     int64   `json:"user_id"`
	User       string  `json:"user,omitempty"`
	FullName   string  `json:"full_name,omitempty"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	ScheduleID *int64  `json:"schedule_id,omitempty"`
	LinkID     *string `json:"link_id,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// EventUpdate carries the optional fields of an event edit; nil means
// "leave unchanged".
type EventUpdate struct {
	Start  *int64
	End    *int64
	UserID *int64
	RoleID *int64
	Note   *string
}

type Subscription struct {
	TeamID int64  `json:"subscription_id"`
	Team   string `json:"subscription"`
	RoleID int64  `json:"role_id"`
	Role   string `json:"role"`
}

type NotificationSetting struct {
	ID             int64    `json:"id"`
	UserID         int64    `json:"user_id"`
	User           string   `json:"user"`
	TeamID         int64    `json:"team_id"`
	Team           string   `json:"team"`
	ModeID         int64    `json:"mode_id"`
	Mode           string   `json:"mode"`
	TypeID         int64    `json:"type_id"`
	Type           string   `json:"type"`
	IsReminder     bool     `json:"-"`
	TimeBefore     *int64   `json:"time_before,omitempty"`
	OnlyIfInvolved *bool    `json:"only_if_involved,omitempty"`
	Roles          []string `json:"roles"`
}

// QueuedNotification is a row to insert into notification_queue.
type QueuedNotification struct {
	UserID   int64
	ModeID   int64
	TypeID   int64
	SendTime int64
	Context  string
	Active   bool
	Sent     bool
}

// QueuedMessage is a due notification_queue row joined to its user, contact
// mode and type templates, ready for the notifier to format and send.
type QueuedMessage struct {
	ID       int64  `json:"id"`
	User     string `json:"user"`
	Mode     string `json:"mode"`
	SendTime int64  `json:"send_time"`
	TimeZone string `json:"time_zone,omitempty"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Context  string `json:"context"`
}

type AuditEntry struct {
	TeamName  string `json:"team_name"`
	Owner     string `json:"owner_name"`
	Action    string `json:"action_name"`
	Timestamp int64  `json:"timestamp"`
	Context   string `json:"description"`
}

type Session struct {
	ID        int64  `json:"id"`
	UserName  string `json:"user"`
	CSRFToken string `json:"csrf_token"`
}

type IcalKey struct {
	Key         string `json:"key"`
	Requester   string `json:"requester"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	TimeCreated int64  `json:"time_created"`
}

// OncallShift is one currently on-call user for a team role, with the
// contact modes callers need to reach them.
type OncallShift struct {
	User     string            `json:"user"`
	FullName string            `json:"full_name"`
	Team     string            `json:"team"`
	Role     string            `json:"role"`
	Start    int64             `json:"start"`
	End      int64             `json:"end"`
	Contacts map[string]string `json:"contacts"`
}
