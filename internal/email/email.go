// Package email provides email sending functionality
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
}

// NewService creates a new email service
func NewService(config *Config) *Service {
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
	}
	s.loadTemplates()
	return s
}

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

func (s *Service) loadTemplates() {
	s.templates["project_invitation"] = template.Must(template.New("project_invitation").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #10b981; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .btn { display: inline-block; background: #10b981; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>You're Invited to Taskboard</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p><strong>{{.InviterName}}</strong> invited you to join <strong>{{.ProjectName}}</strong> as a {{.Role}}.</p>

        <a href="{{.InviteURL}}" class="btn">Accept Invitation</a>

        <p style="margin-top: 16px; font-size: 14px; color: #6b7280;">
            This invitation may expire. If you were not expecting this email, you can ignore it.
        </p>
    </div>
    <div class="footer">
        Taskboard • Team Collaboration Platform
    </div>
</div>
</body>
</html>
`))

	s.templates["project_updated"] = template.Must(template.New("project_updated").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #3b82f6; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Project Updated</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p>The project <strong>{{.ProjectName}}</strong> was updated: {{.Change}}.</p>
    </div>
    <div class="footer">
        Taskboard • Team Collaboration Platform
    </div>
</div>
</body>
</html>
`))

	s.templates["project_deleted"] = template.Must(template.New("project_deleted").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #ef4444; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Project Deleted</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p>The project <strong>{{.ProjectName}}</strong> was deleted by its creator. Its tasks are no longer accessible.</p>
    </div>
    <div class="footer">
        Taskboard • Team Collaboration Platform
    </div>
</div>
</body>
</html>
`))

	s.templates["task_due_soon"] = template.Must(template.New("task_due_soon").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #f59e0b; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .task-card { background: white; border-radius: 8px; padding: 20px; margin: 20px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .footer { text-align: center; color: #6b7280; font-size: 12px; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>⏰ Task Due Soon</h1>
        </div>
        <div class="content">
            <p>Hello,</p>
            <p>A task assigned to you is due soon.</p>
            <div class="task-card">
                <h2>{{.TaskTitle}}</h2>
                <p><strong>Due:</strong> {{.DueDate}}</p>
                <p><strong>Priority:</strong> {{.Priority}}</p>
            </div>
        </div>
        <div class="footer">
            <p>This email was sent from Taskboard</p>
        </div>
    </div>
</body>
</html>
`))
}

// Send sends an email
func (s *Service) Send(email *Email) error {
	if s.config.Host == "" {
		log.Println("Email not configured, skipping send")
		return nil
	}

	var msg bytes.Buffer

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.Body)
	}

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if s.config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: s.config.Host,
		}

		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("TLS dial error: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.config.Host)
		if err != nil {
			return fmt.Errorf("SMTP client error: %w", err)
		}
		defer client.Close()

		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("auth error: %w", err)
		}
		if err = client.Mail(s.config.From); err != nil {
			return fmt.Errorf("mail error: %w", err)
		}
		for _, rcpt := range email.To {
			if err = client.Rcpt(rcpt); err != nil {
				return fmt.Errorf("rcpt error: %w", err)
			}
		}

		w, err := client.Data()
		if err != nil {
			return fmt.Errorf("data error: %w", err)
		}
		if _, err = w.Write(msg.Bytes()); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		if err = w.Close(); err != nil {
			return fmt.Errorf("close error: %w", err)
		}
		return client.Quit()
	}

	return smtp.SendMail(addr, auth, s.config.From, email.To, msg.Bytes())
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(to []string, subject, templateName string, data interface{}) error {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return fmt.Errorf("template not found: %s", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	return s.Send(&Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body.String(),
	})
}

// ProjectInvitationData holds data for project invitation email
type ProjectInvitationData struct {
	InviterName string
	ProjectName string
	Role        string
	InviteURL   string
}

// SendProjectInvitation sends a project invitation email
func (s *Service) SendProjectInvitation(to string, data ProjectInvitationData) error {
	return s.SendWithTemplate(
		[]string{to},
		fmt.Sprintf("[Taskboard] Invitation to join %s", data.ProjectName),
		"project_invitation",
		data,
	)
}

// ProjectUpdatedData holds data for project update email
type ProjectUpdatedData struct {
	ProjectName string
	Change      string
}

// SendProjectUpdated sends a project update email
func (s *Service) SendProjectUpdated(to string, data ProjectUpdatedData) error {
	return s.SendWithTemplate(
		[]string{to},
		fmt.Sprintf("[Taskboard] %s was updated", data.ProjectName),
		"project_updated",
		data,
	)
}

// ProjectDeletedData holds data for project deletion email
type ProjectDeletedData struct {
	ProjectName string
}

// SendProjectDeleted sends a project deletion email
func (s *Service) SendProjectDeleted(to string, data ProjectDeletedData) error {
	return s.SendWithTemplate(
		[]string{to},
		fmt.Sprintf("[Taskboard] %s was deleted", data.ProjectName),
		"project_deleted",
		data,
	)
}

// TaskDueSoonData holds data for due-soon reminder email
type TaskDueSoonData struct {
	TaskTitle string
	DueDate   string
	Priority  string
}

// SendTaskDueSoon sends a due-soon reminder email
func (s *Service) SendTaskDueSoon(to string, data TaskDueSoonData) error {
	return s.SendWithTemplate(
		[]string{to},
		fmt.Sprintf("[Taskboard] Due soon: %s", data.TaskTitle),
		"task_due_soon",
		data,
	)
}
