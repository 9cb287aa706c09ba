package types

// Task permissions checked against the caller's project role.
const (
	PermViewTasks    = "view_tasks"
	PermCreateTask   = "create_task"
	PermEditTask     = "edit_task"
	PermAssignTask   = "assign_task"
	PermChangeStatus = "change_status"
	PermDeleteTask   = "delete_task"
)

// roleLevel returns numeric level for role comparison (higher = more permissions)
func roleLevel(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// HasMinimumRole checks if role is at least minRole in the admin > member > viewer hierarchy.
func HasMinimumRole(role, minRole string) bool {
	return roleLevel(role) > 0 && roleLevel(role) >= roleLevel(minRole)
}

// RoleAllows evaluates the task permission matrix for a role. change_status
// is only fully decidable with assignment context; see CanChangeStatus.
func RoleAllows(role, permission string) bool {
	switch permission {
	case PermViewTasks:
		return roleLevel(role) >= roleLevel(RoleViewer)
	case PermChangeStatus:
		return roleLevel(role) >= roleLevel(RoleMember)
	case PermCreateTask, PermEditTask, PermAssignTask, PermDeleteTask:
		return role == RoleAdmin
	default:
		return false
	}
}

// CanChangeStatus applies the matrix row for change_status: admins always,
// members only on tasks assigned to them, viewers never.
func CanChangeStatus(role string, isAssignee bool) bool {
	if role == RoleAdmin {
		return true
	}
	return role == RoleMember && isAssignee
}
