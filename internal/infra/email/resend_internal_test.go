package email

import (
	"context"
	"errors"
	"testing"

	"github.com/resendlabs/resend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/resilience"
)

func TestResendSender_Send(t *testing.T) {
	var got *resend.SendEmailRequest
	s := newSender(func(req *resend.SendEmailRequest) (string, error) {
		got = req
		return "re_123", nil
	}, "hello@northwind.studio", "Northwind", resilience.NewCircuitBreaker("email-test"), zap.NewNop())

	id, err := s.Send(context.Background(), &domain.OutboundEmail{
		To: "ada@example.com", Subject: "Hi", HTML: "<p>hi</p>", ReplyTo: "sales@northwind.studio",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_123", id)
	assert.Equal(t, "Northwind <hello@northwind.studio>", got.From)
	assert.Equal(t, []string{"ada@example.com"}, got.To)
	assert.Equal(t, "sales@northwind.studio", got.ReplyTo)
}

func TestResendSender_FailureIsNotRetried(t *testing.T) {
	calls := 0
	s := newSender(func(*resend.SendEmailRequest) (string, error) {
		calls++
		return "", errors.New("provider down")
	}, "a@b.c", "A", resilience.NewCircuitBreaker("email-fail"), zap.NewNop())

	_, err := s.Send(context.Background(), &domain.OutboundEmail{To: "x@y.z"})
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, 1, calls)
}

func TestResendSender_RequiresRecipient(t *testing.T) {
	s := newSender(func(*resend.SendEmailRequest) (string, error) {
		t.Fatal("must not send")
		return "", nil
	}, "a@b.c", "A", resilience.NewCircuitBreaker("email-to"), zap.NewNop())

	_, err := s.Send(context.Background(), &domain.OutboundEmail{})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestNewResendSender_RequiresKey(t *testing.T) {
	_, err := NewResendSender("", "a@b.c", "A", resilience.NewCircuitBreaker("email-key"), zap.NewNop())
	assert.Error(t, err)
}
