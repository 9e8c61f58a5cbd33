package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	"github.com/mcd-eng/mcd-console-api/pkg/jobs"
)

type emailDirectory interface {
	FindEmails(ctx context.Context, usernames []string) ([]string, error)
}

// NoopNotifier discards all notifications. Used when notifications are
// disabled by configuration.
type NoopNotifier struct{}

// ProjectSubmitted implements Notifier.
func (NoopNotifier) ProjectSubmitted(context.Context, *models.Project, []string) {}

// ProjectApproved implements Notifier.
func (NoopNotifier) ProjectApproved(context.Context, *models.Project) {}

// ProjectRejected implements Notifier.
func (NoopNotifier) ProjectRejected(context.Context, *models.Project, string, string) {}

// EmailConfig configures SMTP delivery for workflow notifications.
type EmailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	// EmailDomain turns bare usernames into addresses when the user has
	// no stored email.
	EmailDomain string
	ServiceURL  string
	Workers     int
	Retries     int
}

type emailJob struct {
	To      []string
	Subject string
	Body    string
}

// EmailNotifier delivers workflow notifications over SMTP through a
// background queue, so the approval workflow never waits on a mail server.
type EmailNotifier struct {
	users  emailDirectory
	queue  *jobs.Queue
	config EmailConfig
	logger *zap.Logger
}

// NewEmailNotifier builds the notifier and its delivery queue. Call Start
// before use and Stop on shutdown.
func NewEmailNotifier(users emailDirectory, config EmailConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &EmailNotifier{users: users, config: config, logger: logger}
	n.queue = jobs.NewQueue("notifications", n.deliver, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.Retries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return n
}

// Start begins background delivery.
func (n *EmailNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (n *EmailNotifier) Stop() {
	n.queue.Stop()
}

// ProjectSubmitted notifies the approvers that a project awaits their
// review.
func (n *EmailNotifier) ProjectSubmitted(ctx context.Context, project *models.Project, approvers []string) {
	subject := fmt.Sprintf("Project %q submitted for approval", project.Name)
	body := fmt.Sprintf("The project %q was submitted for your approval.\n\n%s/projects/%s/approval", project.Name, n.config.ServiceURL, project.ID)
	n.enqueue(ctx, approvers, subject, body)
}

// ProjectApproved notifies the owner and editors that the project content
// became the approved configuration.
func (n *EmailNotifier) ProjectApproved(ctx context.Context, project *models.Project) {
	subject := fmt.Sprintf("Project %q was approved", project.Name)
	body := fmt.Sprintf("The project %q is now the approved configuration.\n\n%s/projects/%s", project.Name, n.config.ServiceURL, project.ID)
	n.enqueue(ctx, append([]string{project.Owner}, project.Editors...), subject, body)
}

// ProjectRejected notifies the owner and editors of a rejection.
func (n *EmailNotifier) ProjectRejected(ctx context.Context, project *models.Project, reason, actor string) {
	subject := fmt.Sprintf("Project %q was rejected", project.Name)
	body := fmt.Sprintf("%s rejected the project %q:\n\n%s\n\n%s/projects/%s", actor, project.Name, reason, n.config.ServiceURL, project.ID)
	n.enqueue(ctx, append([]string{project.Owner}, project.Editors...), subject, body)
}

func (n *EmailNotifier) enqueue(ctx context.Context, usernames []string, subject, body string) {
	recipients := n.resolve(ctx, usernames)
	if len(recipients) == 0 {
		return
	}
	err := n.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "email",
		Payload: emailJob{To: recipients, Subject: subject, Body: body},
	})
	if err != nil {
		n.logger.Warn("failed to enqueue notification", zap.Error(err))
	}
}

// resolve maps usernames to addresses, falling back to username@domain
// when the directory has nothing stored.
func (n *EmailNotifier) resolve(ctx context.Context, usernames []string) []string {
	unique := make([]string, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for _, username := range usernames {
		if username == "" || username == "system" {
			continue
		}
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}
		unique = append(unique, username)
	}
	if len(unique) == 0 {
		return nil
	}

	emails, err := n.users.FindEmails(ctx, unique)
	if err != nil {
		n.logger.Warn("failed to resolve notification recipients", zap.Error(err))
		emails = nil
	}
	if len(emails) == 0 && n.config.EmailDomain != "" {
		for _, username := range unique {
			if !strings.Contains(username, "@") {
				emails = append(emails, username+"@"+n.config.EmailDomain)
			}
		}
	}
	return emails
}

func (n *EmailNotifier) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", n.config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(payload.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", payload.Subject)
	msg.WriteString("\r\n")
	msg.WriteString(payload.Body)

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}
	if err := smtp.SendMail(addr, auth, n.config.FromAddress, payload.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}
