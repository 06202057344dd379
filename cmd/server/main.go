// Package main is the entry point for the authentication server. Its job
// is to load configuration, build the logger and mail sender, and hand
// everything to the server package.
package main

import (
	"log/slog"
	"os"

	"github.com/justanagent/auth-service/internal/config"
	"github.com/justanagent/auth-service/internal/mailer"
	"github.com/justanagent/auth-service/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	var mail mailer.Sender
	smtpCfg := mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}
	if smtpCfg.Configured() {
		mail = mailer.NewSMTPSender(smtpCfg)
		logger.Info("email delivery via SMTP", slog.String("host", cfg.SMTP.Host))
	} else {
		mail = mailer.NewLogSender(logger)
		logger.Warn("SMTP not configured, OTPs and reset links will be logged")
	}

	srv, err := server.New(cfg, mail, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
