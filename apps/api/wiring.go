package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/platform/go/mail"
	"github.com/zenGate-Global/palmyra-projects/platform/go/session"
)

// mailer bundles the dispatcher handed to the invitation service with the
// resources behind it.
type mailer struct {
	dispatcher mail.Dispatcher
	consumer   *mail.Consumer
	pool       *mail.PoolDispatcher
	conn       *nats.Conn
}

// drain waits for queued in-process deliveries.
func (m *mailer) drain(ctx context.Context) error {
	if m.pool == nil {
		return nil
	}
	return m.pool.Close(ctx)
}

func (m *mailer) close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func newSender(cfg config, logger *zap.Logger) (mail.Sender, error) {
	switch cfg.MailSender {
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return nil, fmt.Errorf("SMTP_HOST and SMTP_FROM are required when MAIL_SENDER=smtp")
		}
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Password: cfg.SMTPPassword,
		}), nil
	case "log":
		return mail.NewLogSender(logger.Named("mail")), nil
	default:
		return nil, fmt.Errorf("unsupported mail sender %q (use smtp or log)", cfg.MailSender)
	}
}

func newMailer(ctx context.Context, cfg config, recorder mail.Recorder, logger *zap.Logger) (*mailer, error) {
	sender, err := newSender(cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.MailTransport {
	case "pool":
		pool := mail.NewPoolDispatcher(sender, mail.PoolConfig{Workers: cfg.MailWorkers}, recorder, logger)
		return &mailer{dispatcher: pool, pool: pool}, nil
	case "jetstream":
		conn, js, err := mail.ConnectJetStream(ctx, cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		return &mailer{
			dispatcher: mail.NewJetStreamDispatcher(js, recorder),
			consumer:   mail.NewConsumer(js, sender, recorder, logger),
			conn:       conn,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q (use pool or jetstream)", cfg.MailTransport)
	}
}

func newSessionStore(ctx context.Context, cfg config) (session.Store, func(), error) {
	switch cfg.SessionStore {
	case "memory":
		return session.NewMemoryStore(cfg.PendingInvitationTTL, nil), func() {}, nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(client, cfg.PendingInvitationTTL), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q (use memory or redis)", cfg.SessionStore)
	}
}
