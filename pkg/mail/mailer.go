package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

const defaultSMTPTimeout = 10 * time.Second

// Message is one outbound email. With both bodies set the message is sent as
// multipart/alternative so clients without HTML still get text.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Mailer sends email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings configure the SMTP mailer. UseTLS selects implicit TLS (port 465);
// otherwise STARTTLS is used when the server offers it.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) validate() error {
	switch {
	case !s.Enabled:
		return nil
	case strings.TrimSpace(s.Host) == "":
		return errors.New("smtp: host is required when enabled")
	case s.Port <= 0:
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

type dialFunc func() (gomail.SendCloser, error)

type smtpMailer struct {
	cfg  SMTPSettings
	dial dialFunc
}

// NewSMTPMailer validates the settings and returns a gomail backed Mailer. A disabled
// configuration yields a mailer that always reports ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.UseTLS
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &smtpMailer{cfg: cfg, dial: dialer.Dial}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	envelope, err := m.compose(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	sender, err := m.dialContext(ctx)
	if err != nil {
		return fmt.Errorf("smtp: dial %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	defer sender.Close()

	if err := gomail.Send(sender, envelope); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

// compose validates addresses and builds the MIME message.
func (m *smtpMailer) compose(msg Message) (*gomail.Message, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return nil, errors.New("smtp: at least one recipient is required")
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return nil, fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(m.cfg.From)
	}
	if from == "" {
		return nil, errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("smtp: invalid from address: %w", err)
	}

	envelope := gomail.NewMessage()
	envelope.SetHeader("From", from)
	envelope.SetHeader("To", recipients...)
	envelope.SetHeader("Subject", headerSafe.Replace(msg.Subject))

	html := strings.TrimSpace(msg.HTMLBody) != ""
	switch {
	case html && msg.Body != "":
		envelope.SetBody("text/plain", msg.Body)
		envelope.AddAlternative("text/html", msg.HTMLBody)
	case html:
		envelope.SetBody("text/html", msg.HTMLBody)
	default:
		envelope.SetBody("text/plain", msg.Body)
	}
	return envelope, nil
}

// dialContext bounds the dial by ctx. A connection that completes after ctx is done is
// closed in the background.
func (m *smtpMailer) dialContext(ctx context.Context) (gomail.SendCloser, error) {
	type dialed struct {
		sender gomail.SendCloser
		err    error
	}
	done := make(chan dialed, 1)
	go func() {
		sender, err := m.dial()
		done <- dialed{sender, err}
	}()

	select {
	case result := <-done:
		return result.sender, result.err
	case <-ctx.Done():
		go func() {
			if late := <-done; late.sender != nil {
				_ = late.sender.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

var headerSafe = strings.NewReplacer("\r", " ", "\n", " ")

// uniqueAddresses trims addresses and drops blanks and repeats, keeping order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	unique := make([]string, 0, len(addresses))
	for _, raw := range addresses {
		addr := strings.TrimSpace(raw)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			unique = append(unique, addr)
		}
	}
	return unique
}
