package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderLog      = "log"
)

type Message struct {
	To      string
	Name    string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Provider    string
	From        string
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	SendGridKey string
}

// New picks the sender named by cfg.Provider. An empty provider logs mail
// instead of delivering it.
func New(cfg Config, log *zerolog.Logger) (Sender, error) {
	switch cfg.Provider {
	case ProviderSMTP:
		if cfg.SMTPHost == "" || cfg.From == "" {
			return nil, fmt.Errorf("smtp mailer needs mail.smtp_host and mail.from")
		}
		return &smtpSender{cfg: cfg, log: log}, nil
	case ProviderSendGrid:
		if cfg.SendGridKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("sendgrid mailer needs mail.sendgrid_key and mail.from")
		}
		return &sendgridSender{
			client: sendgrid.NewSendClient(cfg.SendGridKey),
			from:   sgmail.NewEmail("Gathered", cfg.From),
			log:    log,
		}, nil
	case ProviderLog, "":
		return &logSender{log: log}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

type smtpSender struct {
	cfg Config
	log *zerolog.Logger
}

func (s *smtpSender) Send(_ context.Context, msg Message) error {
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, msg.To, msg.Subject, msg.Body,
	)

	addr := s.cfg.SMTPHost + ":" + strconv.Itoa(s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(raw)); err != nil {
		s.log.Warn().Msgf("failed to send email to %s: %v", msg.To, err)
		return fmt.Errorf("send email: %w", err)
	}

	s.log.Info().Msgf("📧 Email sent to %s (%s)", msg.To, msg.Subject)
	return nil
}

type sendgridSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
	log    *zerolog.Logger
}

func (s *sendgridSender) Send(_ context.Context, msg Message) error {
	m := sgmail.NewSingleEmail(s.from, msg.Subject, sgmail.NewEmail(msg.Name, msg.To), msg.Body, "")

	res, err := s.client.Send(m)
	if err != nil {
		s.log.Warn().Msgf("failed to send email to %s: %v", msg.To, err)
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send email: sendgrid answered %d: %s", res.StatusCode, res.Body)
	}

	s.log.Info().Msgf("📧 Email sent to %s (%s)", msg.To, msg.Subject)
	return nil
}

type logSender struct {
	log *zerolog.Logger
}

func (s *logSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg(strings.ReplaceAll(msg.Body, "\n", " | "))
	return nil
}

// Compose renders the notification text for kind. when is the human readable
// event start.
func Compose(kind, name, eventTitle, when string) (subject, body string) {
	greeting := "Hello"
	if name != "" {
		greeting += " " + name
	}

	switch kind {
	case "registered":
		subject = "✅ You are registered for " + eventTitle
		body = fmt.Sprintf("%s!\n\nYour registration for %q is confirmed.\nThe event starts %s.", greeting, eventTitle, when)
	case "cancelled":
		subject = "❌ Registration cancelled: " + eventTitle
		body = fmt.Sprintf("%s!\n\nYour registration for %q has been cancelled.", greeting, eventTitle)
	case "attendance":
		subject = "Attendance recorded: " + eventTitle
		body = fmt.Sprintf("%s!\n\nYour attendance for %q has been updated.", greeting, eventTitle)
	case "reminder":
		subject = "⏰ Reminder: " + eventTitle
		body = fmt.Sprintf("%s!\n\n%q starts %s. See you there!", greeting, eventTitle, when)
	default:
		subject = eventTitle
		body = greeting + "!"
	}
	return subject, body
}
