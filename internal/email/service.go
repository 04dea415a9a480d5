// Package email sends transactional mail through Resend. When disabled
// it logs the message instead, which keeps development and tests free
// of external calls.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/config"
)

type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	logger       zerolog.Logger
}

// VerificationData renders the verification email body.
type VerificationData struct {
	Username    string
	VerifyLink  string
	CurrentYear int
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
  <body>
    <p>Hi {{.Username}},</p>
    <p>Confirm this email address for your Faultline account:</p>
    <p><a href="{{.VerifyLink}}">Verify email address</a></p>
    <p>If you did not add this address, you can ignore this message.</p>
    <p>&copy; {{.CurrentYear}} Faultline</p>
  </body>
</html>`))

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender address in config: %w", err)
		}
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("email enabled but RESEND_API_KEY is empty")
		}
	}

	svc := &Service{
		config: cfg,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendVerification mails a verification link for a newly added address.
func (s *Service) SendVerification(ctx context.Context, to, username, verifyLink string) error {
	if err := validateAddress(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := validateLink(verifyLink); err != nil {
		return fmt.Errorf("invalid verification link: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("link", verifyLink).
			Msg("email service disabled, skipping verification email")
		return nil
	}

	data := VerificationData{
		Username:    username,
		VerifyLink:  verifyLink,
		CurrentYear: time.Now().Year(),
	}
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}

	return s.send(ctx, to, "Verify your email address", body.String())
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("to", to).
		Msg("email sent")
	return nil
}

func validateAddress(address string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return err
	}
	return nil
}

// validateLink rejects non-http(s) schemes so a crafted base URL cannot
// smuggle javascript: links into mail bodies.
func validateLink(link string) error {
	parsed, err := url.Parse(link)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	return nil
}
