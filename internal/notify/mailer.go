// Package notify is the EmailSender collaborator: a fire-and-forget
// outbound mail seam the core calls but never waits on for correctness.
package notify

import (
	"context"
	"log/slog"
)

// EmailSender is the consumed contract §6 names.
type EmailSender interface {
	SendPasswordReset(ctx context.Context, toAddress, resetToken, locale string) error
}

// DevMailer logs the email instead of sending it — safe for development
// and the default wired by cmd/keygen-adjacent local tooling.
type DevMailer struct {
	Logger *slog.Logger
}

// NewDevMailer builds a DevMailer over logger.
func NewDevMailer(logger *slog.Logger) *DevMailer {
	return &DevMailer{Logger: logger}
}

func (m *DevMailer) SendPasswordReset(ctx context.Context, toAddress, resetToken, locale string) error {
	m.Logger.InfoContext(ctx, "email sent",
		"type", "password_reset",
		"to", toAddress,
		"locale", locale,
	)
	return nil
}
