package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"price_digest/services/report"
)

// Sender delivers one rendered digest
type Sender interface {
	Send(ctx context.Context, msg report.Message) error
}

// DeliveryError reports a failed send to one recipient
type DeliveryError struct {
	Recipient string
	Cause     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Config holds SMTP settings. Delivery always requires STARTTLS.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends digests over SMTP. A connection is opened per message,
// so concurrent Send calls do not share client state.
type SMTPMailer struct {
	cfg    Config
	logger *zap.Logger
}

func NewSMTPMailer(cfg Config, logger *zap.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) buildMsg(msg report.Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return out, nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// Send delivers msg and wraps any failure in a DeliveryError
func (m *SMTPMailer) Send(ctx context.Context, msg report.Message) error {
	out, err := m.buildMsg(msg)
	if err != nil {
		return &DeliveryError{Recipient: msg.To, Cause: err}
	}
	c, err := m.client()
	if err != nil {
		return &DeliveryError{Recipient: msg.To, Cause: err}
	}

	start := time.Now()
	if err := c.DialAndSendWithContext(ctx, out); err != nil {
		return &DeliveryError{Recipient: msg.To, Cause: err}
	}
	m.logger.Debug("digest delivered",
		zap.String("to", msg.To),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
