// Package mailer is the email collaborator: it delivers the verification OTP
// and password-reset messages. The service layer depends only on the Sender
// contract; whether mail actually leaves the box is a deployment concern.
package mailer

import (
	"context"
	"log/slog"
)

// Sender delivers the two transactional messages the auth flows produce.
// Both methods may fail; the orchestrator decides whether a failure is fatal
// (production) or recoverable via the out-of-band fallback (development).
type Sender interface {
	SendVerificationOTP(ctx context.Context, email, name, otp string) error
	SendPasswordResetEmail(ctx context.Context, email, name, resetURL string) error
}

// LogSender is the development fallback used when no SMTP configuration is
// present: it logs what would have been sent, OTP and reset link included, so
// the flows remain usable from the terminal.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationOTP(ctx context.Context, email, name, otp string) error {
	s.logger.Info("email not configured, logging verification OTP",
		slog.String("email", email),
		slog.String("name", name),
		slog.String("otp", otp),
	)
	return nil
}

func (s *LogSender) SendPasswordResetEmail(ctx context.Context, email, name, resetURL string) error {
	s.logger.Info("email not configured, logging password reset link",
		slog.String("email", email),
		slog.String("name", name),
		slog.String("resetURL", resetURL),
	)
	return nil
}
