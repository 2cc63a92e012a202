package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// ErrInvalidMessage marks a message that can never be delivered, such as one
// with a malformed address. Retrying it is pointless.
var ErrInvalidMessage = errors.New("invalid mail message")

type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// Send dials the server and delivers m; ctx bounds the whole exchange.
func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	if len(m.To) == 0 {
		return nil
	}
	msg, err := s.message(m)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", strings.Join(m.To, ","), err)
	}
	return nil
}

func (s *SMTPMailer) options() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.Port), mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}
	if s.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.User),
			mail.WithPassword(s.Password),
		)
	}
	return opts
}

// message builds a plain-text mail; headers are MIME-encoded by go-mail.
func (s *SMTPMailer) message(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.From); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidMessage, s.From, err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("%w: to %v: %v", ErrInvalidMessage, m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

// LogMailer writes messages to the log. Used when no SMTP host is configured.
type LogMailer struct{ Log logrus.FieldLogger }

func (l LogMailer) Send(_ context.Context, m Message) error {
	l.Log.WithField("to", m.To).WithField("subject", m.Subject).Info("mail")
	return nil
}
