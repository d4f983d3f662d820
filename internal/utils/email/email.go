package email

import (
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/neilb14/users-service/internal/config"
	"github.com/sirupsen/logrus"
)

// sendTimeout caps how long a caller waits on the SMTP exchange.
const sendTimeout = 5 * time.Second

var errSendTimeout = errors.New("smtp send timed out")

// Sender handles sending emails via SMTP
type Sender struct {
	cfg     *config.Config
	logger  *logrus.Logger
	send    func(e *email.Email, addr string, auth smtp.Auth) error
	timeout time.Duration
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
		timeout: sendTimeout,
	}
}

// SendWelcome sends a registration confirmation to a new user
func (s *Sender) SendWelcome(to, username string) error {
	e := s.welcomeEmail(to, username)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.sendWithin(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send welcome email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// sendWithin stops waiting after s.timeout. The SMTP exchange itself keeps
// running in its goroutine until the server or the OS gives up.
func (s *Sender) sendWithin(e *email.Email, addr string, auth smtp.Auth) error {
	done := make(chan error, 1)
	go func() {
		done <- s.send(e, addr, auth)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", errSendTimeout, s.timeout)
	}
}

func (s *Sender) welcomeEmail(to, username string) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Welcome aboard"

	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += "Your account has been created. You can now log in with this email address.\n"
	body += "\nBest regards,\nUsers Service"
	e.Text = []byte(body)
	return e
}
