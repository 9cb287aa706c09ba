// Package notification dispatches user-facing notifications for project
// and task events. Failures are logged and never surfaced to callers.
package notification

import (
	"fmt"
	"log"

	"github.com/orastack/taskboard-backend/internal/email"
)

// Notification event types
const (
	TypeProjectInvitation = "project_invitation"
	TypeProjectUpdated    = "project_updated"
	TypeProjectDeleted    = "project_deleted"
	TypeProjectArchived   = "project_archived"
	TypeTaskAssigned      = "task_assigned"
	TypeTaskDueSoon       = "task_due_soon"
)

// Notifier sends notifications about domain events. Implementations must
// not block the caller on delivery.
type Notifier interface {
	ProjectInvitation(toEmail, inviterName, projectName, role, inviteURL string)
	ProjectUpdated(toEmail, projectName, change string)
	ProjectDeleted(toEmail, projectName string)
	TaskDueSoon(toEmail, taskTitle, dueDate, priority string)
}

// EmailNotifier delivers notifications via the email service.
type EmailNotifier struct {
	email *email.Service
}

// NewEmailNotifier creates an email-backed notifier
func NewEmailNotifier(emailService *email.Service) *EmailNotifier {
	return &EmailNotifier{email: emailService}
}

// ProjectInvitation sends a project invitation email in the background
func (n *EmailNotifier) ProjectInvitation(toEmail, inviterName, projectName, role, inviteURL string) {
	go func() {
		err := n.email.SendProjectInvitation(toEmail, email.ProjectInvitationData{
			InviterName: inviterName,
			ProjectName: projectName,
			Role:        role,
			InviteURL:   inviteURL,
		})
		if err != nil {
			log.Printf("⚠️ Failed to send %s notification to %s: %v", TypeProjectInvitation, toEmail, err)
		}
	}()
}

// ProjectUpdated sends a project update email in the background
func (n *EmailNotifier) ProjectUpdated(toEmail, projectName, change string) {
	go func() {
		err := n.email.SendProjectUpdated(toEmail, email.ProjectUpdatedData{
			ProjectName: projectName,
			Change:      change,
		})
		if err != nil {
			log.Printf("⚠️ Failed to send %s notification to %s: %v", TypeProjectUpdated, toEmail, err)
		}
	}()
}

// ProjectDeleted sends a project deletion email in the background
func (n *EmailNotifier) ProjectDeleted(toEmail, projectName string) {
	go func() {
		err := n.email.SendProjectDeleted(toEmail, email.ProjectDeletedData{
			ProjectName: projectName,
		})
		if err != nil {
			log.Printf("⚠️ Failed to send %s notification to %s: %v", TypeProjectDeleted, toEmail, err)
		}
	}()
}

// TaskDueSoon sends a due-soon reminder email in the background
func (n *EmailNotifier) TaskDueSoon(toEmail, taskTitle, dueDate, priority string) {
	go func() {
		err := n.email.SendTaskDueSoon(toEmail, email.TaskDueSoonData{
			TaskTitle: taskTitle,
			DueDate:   dueDate,
			Priority:  priority,
		})
		if err != nil {
			log.Printf("⚠️ Failed to send %s notification to %s: %v", TypeTaskDueSoon, toEmail, err)
		}
	}()
}

// NoopNotifier is used when email is not configured. Events are logged only.
type NoopNotifier struct{}

// ProjectInvitation logs the invitation event
func (NoopNotifier) ProjectInvitation(toEmail, inviterName, projectName, role, inviteURL string) {
	log.Printf("📧 [noop] %s: %s invited to %s", TypeProjectInvitation, toEmail, projectName)
}

// ProjectUpdated logs the update event
func (NoopNotifier) ProjectUpdated(toEmail, projectName, change string) {
	log.Printf("📧 [noop] %s: %s (%s)", TypeProjectUpdated, projectName, change)
}

// ProjectDeleted logs the deletion event
func (NoopNotifier) ProjectDeleted(toEmail, projectName string) {
	log.Printf("📧 [noop] %s: %s", TypeProjectDeleted, projectName)
}

// TaskDueSoon logs the due-soon event
func (NoopNotifier) TaskDueSoon(toEmail, taskTitle, dueDate, priority string) {
	log.Printf("📧 [noop] %s: %s (%s)", TypeTaskDueSoon, taskTitle, fmt.Sprintf("due %s", dueDate))
}
