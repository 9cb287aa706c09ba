// Package cron hosts the scheduled background jobs of both services.
package cron

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/service"
)

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron *cron.Cron
}

// NewProjectScheduler wires the project-service jobs: the daily sweep that
// expires stale invitations.
func NewProjectScheduler(members *service.MemberService, invitationTTL time.Duration) *Scheduler {
	c := cron.New()

	// Run every day at 3 AM - expire stale invitations
	c.AddFunc("0 3 * * *", func() {
		log.Println("[Cron] Running invitation expiry sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := members.ExpireInvitations(ctx, invitationTTL)
		if err != nil {
			log.Printf("[Cron] Invitation expiry failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[Cron] Expired %d stale invitations", n)
		}
	})

	return &Scheduler{cron: c}
}

// NewTaskScheduler wires the task-service jobs: hourly due-soon reminders to
// assignees.
func NewTaskScheduler(taskRepo repository.TaskRepository, users client.UserResolver, notifier service.Notifier) *Scheduler {
	c := cron.New()

	// Run every hour - due date reminders
	c.AddFunc("0 * * * *", func() {
		log.Println("[Cron] Running due date reminder check...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		tasks, err := taskRepo.FindDueSoon(ctx, 24*time.Hour)
		if err != nil {
			log.Printf("[Cron] Due date check failed: %v", err)
			return
		}
		if len(tasks) == 0 {
			return
		}

		ids := make([]string, 0, len(tasks))
		for _, t := range tasks {
			if t.Assignee != nil {
				ids = append(ids, *t.Assignee)
			}
		}
		profiles := resolve(ctx, users, ids)

		for _, t := range tasks {
			if t.Assignee == nil || t.DueDate == nil {
				continue
			}
			profile := profiles[*t.Assignee]
			if profile == nil || profile.Email == "" {
				continue
			}
			notifier.TaskDueSoon(profile.Email, t.Title, t.DueDate.Format("Jan 2, 2006 15:04"), t.Priority)
		}
		log.Printf("[Cron] Sent reminders for %d tasks due within 24h", len(tasks))
	})

	return &Scheduler{cron: c}
}

func resolve(ctx context.Context, users client.UserResolver, ids []string) map[string]*client.UserProfile {
	if users == nil || len(ids) == 0 {
		return map[string]*client.UserProfile{}
	}
	profiles, err := users.Resolve(ctx, ids)
	if err != nil {
		log.Printf("[Cron] Profile resolution failed: %v", err)
		return map[string]*client.UserProfile{}
	}
	return profiles
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Cron] ⏰ Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Cron] Scheduler stopped")
}
