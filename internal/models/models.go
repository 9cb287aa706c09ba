package models

import (
	"encoding/json"
	"time"
)

// ============================================
// Response envelope
// ============================================

type SuccessResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

func NewPagination(page, limit, total int) *Pagination {
	if limit < 1 {
		limit = 1
	}
	pages := total / limit
	if total%limit > 0 {
		pages++
	}
	return &Pagination{
		Page:    page,
		Pages:   pages,
		Total:   total,
		Limit:   limit,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// ============================================
// Nullable fields (absent vs explicitly cleared)
// ============================================

// NullableString distinguishes an absent JSON field from an explicit null.
// Set is true whenever the field appeared in the request body.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

// NullableTime is the time-valued counterpart of NullableString.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

// ============================================
// User profiles (resolved via the user service)
// ============================================

type UserResponse struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// ============================================
// Project DTOs
// ============================================

type CreateProjectRequest struct {
	Name              string  `json:"name" binding:"required"`
	Description       *string `json:"description"`
	IsPublic          *bool   `json:"isPublic"`
	AllowMemberInvite *bool   `json:"allowMemberInvite"`
	MaxMembers        *int    `json:"maxMembers"`
}

type UpdateProjectRequest struct {
	Name              *string        `json:"name"`
	Description       NullableString `json:"description"`
	Status            *string        `json:"status"`
	IsPublic          *bool          `json:"isPublic"`
	AllowMemberInvite *bool          `json:"allowMemberInvite"`
	MaxMembers        *int           `json:"maxMembers"`
}

type ProjectSettingsResponse struct {
	IsPublic          bool `json:"isPublic"`
	AllowMemberInvite bool `json:"allowMemberInvite"`
	MaxMembers        *int `json:"maxMembers,omitempty"`
}

type ProjectMetadataResponse struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	Progress       int `json:"progress"`
}

type ProjectResponse struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Description    *string                 `json:"description,omitempty"`
	CreatedBy      string                  `json:"createdBy"`
	Status         string                  `json:"status"`
	InvitationCode string                  `json:"invitationCode"`
	Settings       ProjectSettingsResponse `json:"settings"`
	Metadata       ProjectMetadataResponse `json:"metadata"`
	Members        []MemberResponse        `json:"members,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// ============================================
// Member DTOs
// ============================================

type MemberResponse struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId,omitempty"`
	Email            string        `json:"email,omitempty"`
	Role             string        `json:"role"`
	Status           string        `json:"status"`
	JoinedAt         time.Time     `json:"joinedAt"`
	InvitedBy        *string       `json:"invitedBy,omitempty"`
	InvitationSentAt *time.Time    `json:"invitationSentAt,omitempty"`
	LastActive       *time.Time    `json:"lastActive,omitempty"`
	User             *UserResponse `json:"user,omitempty"`
	Inviter          *UserResponse `json:"inviter,omitempty"`
}

type InviteMemberRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	Role   string `json:"role" binding:"required,oneof=member viewer"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member viewer"`
}

// ============================================
// Task DTOs
// ============================================

type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	Assignee    *string    `json:"assignee"`
	DueDate     *time.Time `json:"dueDate"`
	Labels      []string   `json:"labels"`
}

type UpdateTaskRequest struct {
	Title       *string        `json:"title"`
	Description NullableString `json:"description"`
	Priority    *string        `json:"priority"`
	DueDate     NullableTime   `json:"dueDate"`
	Labels      *[]string      `json:"labels"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AssignTaskRequest struct {
	Assignee NullableString `json:"assignee"`
}

type TaskResponse struct {
	ID                 string          `json:"id"`
	ProjectID          string          `json:"projectId"`
	Title              string          `json:"title"`
	Description        *string         `json:"description,omitempty"`
	Status             string          `json:"status"`
	Priority           string          `json:"priority"`
	Creator            string          `json:"creator"`
	Assignee           *string         `json:"assignee,omitempty"`
	DueDate            *time.Time      `json:"dueDate,omitempty"`
	Labels             []string        `json:"labels"`
	Watchers           []string        `json:"watchers"`
	IsDeleted          bool            `json:"isDeleted"`
	LastStatusChangeAt time.Time       `json:"lastStatusChangeAt"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	CreatorUser        *UserResponse   `json:"creatorUser,omitempty"`
	AssigneeUser       *UserResponse   `json:"assigneeUser,omitempty"`
	WatcherUsers       []*UserResponse `json:"watcherUsers,omitempty"`
}

// ============================================
// Activity DTOs
// ============================================

type ActivityResponse struct {
	ID        string                 `json:"id"`
	TaskID    string                 `json:"taskId"`
	ProjectID string                 `json:"projectId"`
	Actor     *string                `json:"actor,omitempty"`
	Action    string                 `json:"action"`
	From      map[string]interface{} `json:"from,omitempty"`
	To        map[string]interface{} `json:"to,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	ActorUser *UserResponse          `json:"actorUser,omitempty"`
}

// ============================================
// Permission bridge DTOs
// ============================================

type MemberRoleResponse struct {
	Role     *string `json:"role"`
	IsMember bool    `json:"isMember"`
}
