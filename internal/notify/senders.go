package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS requires STARTTLS when true; otherwise it is used when offered.
	TLS     bool
	Timeout time.Duration
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
	mu     sync.Mutex
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	tlsPolicy := mail.TLSOpportunistic
	if cfg.TLS {
		tlsPolicy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(tlsPolicy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return &SMTPSender{client: client}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return xerrors.New(err)
	}
	if err := m.To(msg.To...); err != nil {
		return xerrors.New(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return xerrors.New(err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Log.InfoContext(ctx, "Outgoing notification",
		"from", msg.From, "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
