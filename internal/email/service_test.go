package email

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline/internal/config"
)

func TestNewServiceDisabled(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func TestNewServiceEnabledRequiresFromAndKey(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "not-an-address"}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewService(config.EmailConfig{Enabled: true, From: "noreply@faultline.dev"}, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "RESEND_API_KEY")
}

func TestSendVerificationDisabledIsNoop(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	err = svc.SendVerification(context.Background(), "foo@example.com", "foo", "https://faultline.dev/verify/abc")
	require.NoError(t, err)
}

func TestSendVerificationRejectsBadRecipient(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	err = svc.SendVerification(context.Background(), "nope", "foo", "https://faultline.dev/verify/abc")
	require.Error(t, err)
}

func TestSendVerificationRejectsBadScheme(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	err = svc.SendVerification(context.Background(), "foo@example.com", "foo", "javascript:alert(1)")
	require.Error(t, err)
}
