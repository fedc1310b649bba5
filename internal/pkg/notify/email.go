package notify

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/MayerS22/Taskify/internal/config"
)

// EmailNotifier sends mail over SMTP.
type EmailNotifier struct {
	cfg     *config.EmailConfig
	baseURL string
	logger  *slog.Logger
}

// NewEmailNotifier creates a new SMTP mailer. baseURL is the externally
// reachable frontend address used to build links.
func NewEmailNotifier(cfg *config.EmailConfig, baseURL string, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SendPasswordReset emails a reset link carrying the token.
func (n *EmailNotifier) SendPasswordReset(toEmail, token string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip password reset mail")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	link := fmt.Sprintf("%s/auth/reset-password?token=%s", n.baseURL, token)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Reset your Taskify password</h2>
    <p>Someone requested a password reset for this address. If that was you,
    click the link below within the next hour:</p>
    <p><a href="%s">%s</a></p>
    <p>If you didn't ask for this, you can ignore this email.</p>
  </div>
</body>
</html>`, link, link)

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[Taskify] Password reset")
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("password reset email sent", slog.String("to", toEmail))
	return nil
}

// SendInvitation emails an invitation to collaborate on a task.
func (n *EmailNotifier) SendInvitation(toEmail, taskTitle, role, token string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip invitation mail")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	link := fmt.Sprintf("%s/invitations/accept?token=%s", n.baseURL, token)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>You've been invited to a task</h2>
    <p>You were invited to join the task <strong>%s</strong> as <strong>%s</strong>.</p>
    <p><a href="%s">Accept the invitation</a></p>
    <p>The invitation expires automatically if left unanswered.</p>
  </div>
</body>
</html>`, html.EscapeString(taskTitle), html.EscapeString(role), link)

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[Taskify] Task invitation")
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("invitation email sent", slog.String("to", toEmail), slog.String("role", role))
	return nil
}
