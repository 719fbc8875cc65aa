// Package email sends transactional email through Resend.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

var tracer = otel.Tracer("email")

// sendFunc delivers one request and returns the provider message id.
type sendFunc func(req *resend.SendEmailRequest) (string, error)

// ResendSender implements port.EmailSender. Sends go through a circuit
// breaker but are never retried, so an email is delivered at most once.
type ResendSender struct {
	send      sendFunc
	fromEmail string
	fromName  string
	cb        *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewResendSender creates a sender for the given API key.
func NewResendSender(apiKey, fromEmail, fromName string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) (*ResendSender, error) {
	if apiKey == "" {
		return nil, errors.New("RESEND_API_KEY is required")
	}
	client := resend.NewClient(apiKey)
	send := func(req *resend.SendEmailRequest) (string, error) {
		resp, err := client.Emails.Send(req)
		if err != nil {
			return "", err
		}
		return resp.Id, nil
	}
	return newSender(send, fromEmail, fromName, cb, logger), nil
}

func newSender(send sendFunc, fromEmail, fromName string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *ResendSender {
	return &ResendSender{send: send, fromEmail: fromEmail, fromName: fromName, cb: cb, logger: logger}
}

// Send delivers one email.
func (s *ResendSender) Send(ctx context.Context, email *domain.OutboundEmail) (string, error) {
	_, span := tracer.Start(ctx, "ResendSender.Send")
	defer span.End()
	span.SetAttributes(attribute.String("email.subject", email.Subject))

	if email.To == "" {
		return "", &domain.ErrValidation{Field: "to", Message: "recipient is required"}
	}

	req := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail),
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		ReplyTo: email.ReplyTo,
	}

	out, err := s.cb.Execute(func() (any, error) {
		return s.send(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &domain.ErrCircuitOpen{Service: s.cb.Name()}
		}
		s.logger.Warn("email send failed",
			zap.String("subject", email.Subject),
			zap.Error(err),
		)
		return "", &domain.ErrExternalService{Service: "resend", Err: err}
	}

	id, _ := out.(string)
	s.logger.Debug("email sent", zap.String("provider_id", id))
	return id, nil
}

// LogSender implements port.EmailSender by logging instead of sending. Used
// when no Resend key is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the email and returns a synthetic id.
func (s *LogSender) Send(_ context.Context, email *domain.OutboundEmail) (string, error) {
	s.logger.Info("email (not sent: no provider configured)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return "log-" + email.To, nil
}
