package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// smtpTimeout bounds the whole dial-and-send exchange so a slow provider
// can't hold a request goroutine indefinitely.
const smtpTimeout = 15 * time.Second

// SMTPConfig holds the connection settings for an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // e.g. "no-reply@example.com"
	FromName string // e.g. "Just an Agent"
}

// Configured reports whether enough settings are present to attempt SMTP
// delivery. cmd/server falls back to LogSender otherwise.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMTPSender delivers mail over SMTP with STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>Verify your email</h2>
	<p>Hi {{.Name}},</p>
	<p>Your verification code is:</p>
	<p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.OTP}}</p>
	<p>The code expires in 10 minutes. If you didn't create an account, you can ignore this email.</p>
</body>
</html>`))

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>Reset your password</h2>
	<p>Hi {{.Name}},</p>
	<p>We received a request to reset your password. The link below is valid for 10 minutes:</p>
	<p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
	<p>If you didn't request a reset, you can ignore this email and your password will stay unchanged.</p>
</body>
</html>`))

func (s *SMTPSender) SendVerificationOTP(ctx context.Context, email, name, otp string) error {
	body, err := render(otpTemplate, map[string]string{"Name": displayName(name), "OTP": otp})
	if err != nil {
		return fmt.Errorf("mailer: rendering OTP email: %w", err)
	}
	return s.send(ctx, email, "Verify your email", body)
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, email, name, resetURL string) error {
	body, err := render(resetTemplate, map[string]string{"Name": displayName(name), "ResetURL": resetURL})
	if err != nil {
		return fmt.Errorf("mailer: rendering reset email: %w", err)
	}
	return s.send(ctx, email, "Reset your password", body)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// send performs the SMTP exchange: dial with timeout, STARTTLS, PLAIN auth,
// then the message. The context deadline (if any) also bounds the dial.
func (s *SMTPSender) send(ctx context.Context, to, subject, htmlBody string) error {
	fromHeader := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	msg := strings.Join([]string{
		"From: " + fromHeader,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mailer: dialing %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(smtpTimeout))

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mailer: smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("mailer: starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("mailer: smtp auth: %w", err)
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mailer: MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("mailer: RCPT TO: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("mailer: writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: closing message: %w", err)
	}

	return c.Quit()
}
