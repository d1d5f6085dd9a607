// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

// Package mail delivers out-of-band messages for the auth package.
package mail

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/devcamper/devcamper/pkg/errutil"
)

// ImplicitTLSPort is the submission port that speaks TLS from the first byte.
const ImplicitTLSPort = 465

// DefaultTimeout bounds a whole delivery when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration

	// RequireTLS fails delivery when the server does not offer STARTTLS.
	// Leave it off only for local relays such as MailHog.
	RequireTLS bool
}

// Validate checks that the configuration is usable.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return oops.Code("MAIL_CONFIG_INVALID").With("port", c.Port).Errorf("smtp port out of range")
	}
	if _, err := mail.ParseAddress(c.FromAddress); err != nil {
		return oops.Code("MAIL_CONFIG_INVALID").
			With("from_address", c.FromAddress).
			Wrapf(err, "invalid sender address")
	}
	return nil
}

// SMTPMailer sends plain text mail through an SMTP submission server.
type SMTPMailer struct {
	cfg    SMTPConfig
	auth   smtp.Auth
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPMailer creates an SMTPMailer. logger may be nil.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &SMTPMailer{cfg: cfg, logger: logger, now: time.Now}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

// Send delivers a plain text message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}

	msg, err := m.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = m.now().Add(m.cfg.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "set deadline").Wrap(err)
	}

	// Unblock the session if ctx ends mid-conversation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := m.deliver(conn, to, msg); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		errutil.LogError(m.logger.With("host", m.cfg.Host), "smtp delivery failed", err)
		return err
	}

	m.logger.DebugContext(ctx, "mail sent", "host", m.cfg.Host, "subject", subject)
	return nil
}

func (m *SMTPMailer) address() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// dial opens the transport. Port 465 is TLS from the start; everything else
// starts in plain text and is upgraded with STARTTLS in deliver.
func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.Port == ImplicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: m.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", m.address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.address())
	}
	if err != nil {
		return nil, oops.Code("MAIL_CONNECT_FAILED").
			With("address", m.address()).
			With("implicit_tls", m.cfg.Port == ImplicitTLSPort).
			Wrap(err)
	}
	return conn, nil
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
}

func (m *SMTPMailer) deliver(conn net.Conn, to string, msg []byte) error {
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "greeting").Wrap(err)
	}
	defer client.Close()

	if m.cfg.Port != ImplicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig()); err != nil {
				return oops.Code("MAIL_SEND_FAILED").With("operation", "starttls").Wrap(err)
			}
		} else if m.cfg.RequireTLS {
			return oops.Code("MAIL_TLS_UNAVAILABLE").
				With("host", m.cfg.Host).
				Errorf("server does not offer STARTTLS")
		}
	}

	if m.auth != nil {
		if err := client.Auth(m.auth); err != nil {
			return oops.Code("MAIL_AUTH_FAILED").With("username", m.cfg.Username).Wrap(err)
		}
	}

	steps := []struct {
		op string
		fn func() error
	}{
		{"mail from", func() error { return client.Mail(m.cfg.FromAddress) }},
		{"rcpt to", func() error { return client.Rcpt(to) }},
		{"data", func() error {
			w, err := client.Data()
			if err != nil {
				return err
			}
			if _, err := w.Write(msg); err != nil {
				_ = w.Close()
				return err
			}
			return w.Close()
		}},
		{"quit", client.Quit},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return oops.Code("MAIL_SEND_FAILED").With("operation", step.op).Wrap(err)
		}
	}
	return nil
}

// buildMessage renders RFC 5322 headers and the body. Header values are
// Q-encoded so non-ASCII subjects and sender names survive transport.
func (m *SMTPMailer) buildMessage(to, subject, body string) ([]byte, error) {
	id, err := m.messageID()
	if err != nil {
		return nil, err
	}

	from := (&mail.Address{Name: m.cfg.FromName, Address: m.cfg.FromAddress}).String()

	return fmt.Appendf(nil,
		"Message-ID: %s\r\n"+
			"Date: %s\r\n"+
			"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		id, m.now().Format(time.RFC1123Z), to, from,
		mime.QEncoding.Encode("utf-8", subject), body,
	), nil
}

func (m *SMTPMailer) messageID() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", oops.Code("MAIL_SEND_FAILED").With("operation", "message id").Wrap(err)
	}
	domain := m.cfg.Host
	if addr, err := mail.ParseAddress(m.cfg.FromAddress); err == nil {
		if at := strings.LastIndexByte(addr.Address, '@'); at >= 0 {
			domain = addr.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%d.%s@%s>", m.now().UnixNano(), hex.EncodeToString(raw), domain), nil
}

