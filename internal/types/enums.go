package types

// Task Status values
const (
	StatusBacklog    = "backlog"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

// Task Priority values
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Project Status values
const (
	ProjectActive   = "active"
	ProjectArchived = "archived"
	ProjectDeleted  = "deleted"
)

// Project Member Roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Member Status values
const (
	MemberActive  = "active"
	MemberInvited = "invited"
	MemberRemoved = "removed"
)

// Activity actions
const (
	ActionCreate         = "create"
	ActionUpdateStatus   = "update_status"
	ActionUpdatePriority = "update_priority"
	ActionAssign         = "assign"
	ActionUnassign       = "unassign"
	ActionEdit           = "edit"
	ActionArchive        = "archive"
	ActionRestore        = "restore"
	ActionDelete         = "delete"
	ActionAddLabel       = "add_label"
	ActionRemoveLabel    = "remove_label"
	ActionSetDueDate     = "set_due_date"
	ActionRemoveDueDate  = "remove_due_date"
)

var ValidTaskStatuses = []string{
	StatusBacklog, StatusInProgress, StatusBlocked,
	StatusDone, StatusArchived,
}

var ValidPriorities = []string{
	PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical,
}

var ValidRoles = []string{RoleAdmin, RoleMember, RoleViewer}

var ValidMemberStatuses = []string{MemberActive, MemberInvited, MemberRemoved}

// statusTransitions is the task state machine. archived is terminal.
var statusTransitions = map[string][]string{
	StatusBacklog:    {StatusInProgress, StatusArchived},
	StatusInProgress: {StatusBlocked, StatusDone, StatusArchived},
	StatusBlocked:    {StatusInProgress, StatusArchived},
	StatusDone:       {StatusInProgress, StatusArchived},
	StatusArchived:   {},
}

func IsValidTaskStatus(status string) bool {
	for _, s := range ValidTaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func IsValidPriority(priority string) bool {
	for _, p := range ValidPriorities {
		if p == priority {
			return true
		}
	}
	return false
}

func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

func IsValidMemberStatus(status string) bool {
	for _, s := range ValidMemberStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition reports whether the state machine allows from -> to.
// A no-op transition (from == to) is not a transition.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
