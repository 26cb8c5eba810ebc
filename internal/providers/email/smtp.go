package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

type SMTPMailer struct {
	cfg Config
	log *zap.Logger
	now func() time.Time
}

func NewSMTP(cfg Config, log *zap.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, log: log.Named("mailer"), now: time.Now}
}

func (m *SMTPMailer) from() string {
	addr := mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
	return addr.String()
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	body, err := build(m.from(), msg, m.now())
	if err != nil {
		return fmt.Errorf("email: build message: %w", err)
	}

	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: close data: %w", err)
	}
	if err := client.Quit(); err != nil {
		m.log.Debug("smtp quit failed", zap.Error(err))
	}
	return nil
}

// Verify connects and authenticates without sending.
func (m *SMTPMailer) Verify(ctx context.Context) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var conn net.Conn
	var err error
	dialer := &net.Dialer{}
	if m.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline.Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("email: handshake: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("email: starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
			if err := client.Auth(auth); err != nil {
				client.Close()
				return nil, fmt.Errorf("email: auth: %w", err)
			}
		}
	}
	return client, nil
}

var _ Mailer = (*SMTPMailer)(nil)
