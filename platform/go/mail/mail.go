package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExpiryLayout formats invitation expiry dates in mail bodies.
const ExpiryLayout = "January 2, 2006"

// Message is one invitation notification.
type Message struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	InviterName string    `json:"inviterName"`
	ProjectName string    `json:"projectName"`
	Role        string    `json:"role"`
	AcceptURL   string    `json:"acceptUrl"`
	ExpiresOn   time.Time `json:"expiresOn"`
}

// InvitationSubject is the subject line for an invitation into projectName.
func InvitationSubject(projectName string) string {
	return fmt.Sprintf("You've been invited to join %s", projectName)
}

// Validate reports messages that cannot be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail: header values must not contain line breaks")
	}
	return nil
}

// Body renders the plain text body.
func (m Message) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has invited you to join %s as %s.\r\n\r\n", m.InviterName, m.ProjectName, m.Role)
	fmt.Fprintf(&b, "Accept the invitation: %s\r\n\r\n", m.AcceptURL)
	fmt.Fprintf(&b, "This invitation expires on %s.\r\n", m.ExpiresOn.Format(ExpiryLayout))
	return b.String()
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher queues messages for asynchronous delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Recorder counts dispatch outcomes.
type Recorder interface {
	RecordMail(outcome string)
}

const (
	outcomeQueued  = "queued"
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

func record(r Recorder, outcome string) {
	if r != nil {
		r.RecordMail(outcome)
	}
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, msg.To, msg.Subject, msg.Body())

	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)
	}

	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		panic("mail log sender requires logger")
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("accept_url", msg.AcceptURL),
		zap.String("expires_on", msg.ExpiresOn.Format(ExpiryLayout)),
	)
	return nil
}
