package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubEnhancer struct {
	out  Draft
	err  error
	seen []Draft
}

func (e *stubEnhancer) Enhance(_ context.Context, d Draft) (Draft, error) {
	e.seen = append(e.seen, d)
	if e.err != nil {
		return d, e.err
	}
	return e.out, nil
}

type stubSender struct {
	readyErr error
	sendErr  error
	sent     []Message
}

func (s *stubSender) Ready() error { return s.readyErr }

func (s *stubSender) Send(_ context.Context, m Message) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, m)
	return "msg-1", nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Execute(t *testing.T) {
	in := Input{RecipientEmail: "user@example.com", Subject: "Test Email Subject", Body: "Draft"}

	tests := []struct {
		name      string
		enhancer  Enhancer
		sender    *stubSender
		input     Input
		success   bool
		retryable bool
		subject   string
		message   string
	}{
		{
			name:     "enhanced and sent",
			enhancer: &stubEnhancer{out: Draft{Subject: "Better", Body: "Better body"}},
			sender:   &stubSender{},
			input:    in,
			success:  true,
			subject:  "Better",
			message:  "Email sent successfully to user@example.com (Message ID: msg-1)",
		},
		{
			name:     "enhancement failure falls back",
			enhancer: &stubEnhancer{err: errors.New("quota")},
			sender:   &stubSender{},
			input:    in,
			success:  true,
			subject:  "Test Email Subject",
			message:  "Email sent successfully",
		},
		{
			name:    "no enhancer",
			sender:  &stubSender{},
			input:   in,
			success: true,
			subject: "Test Email Subject",
			message: "Message ID: msg-1",
		},
		{
			name:    "missing recipient",
			sender:  &stubSender{},
			input:   Input{Subject: "s", Body: "b"},
			subject: "s",
			message: "recipient_email is required",
		},
		{
			name:    "missing subject",
			sender:  &stubSender{},
			input:   Input{RecipientEmail: "user@example.com", Body: "b"},
			message: "subject is required",
		},
		{
			name:    "missing body",
			sender:  &stubSender{},
			input:   Input{RecipientEmail: "user@example.com", Subject: "s"},
			subject: "s",
			message: "body is required",
		},
		{
			name:    "sender not configured",
			sender:  &stubSender{readyErr: errors.New("Brevo API key not configured (BREVO_API_KEY missing)")},
			input:   in,
			subject: "Test Email Subject",
			message: "BREVO_API_KEY missing",
		},
		{
			name:      "temporary delivery failure",
			sender:    &stubSender{sendErr: &DeliveryError{StatusCode: 503, Body: "down"}},
			input:     in,
			subject:   "Test Email Subject",
			message:   "Brevo API error: (503) down",
			retryable: true,
		},
		{
			name:    "permanent delivery failure",
			sender:  &stubSender{sendErr: &DeliveryError{StatusCode: 400, Body: "invalid"}},
			input:   in,
			subject: "Test Email Subject",
			message: "(400)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.enhancer, tt.sender, quietLogger())
			res := svc.Execute(context.Background(), tt.input)

			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.retryable, res.Retryable)
			assert.Equal(t, tt.subject, res.Subject)
			assert.Equal(t, tt.input.RecipientEmail, res.Recipient)
			assert.Contains(t, res.Message, tt.message)
			if tt.success {
				assert.Len(t, tt.sender.sent, 1)
				assert.Equal(t, "msg-1", res.MessageID)
			} else {
				assert.Empty(t, tt.sender.sent)
			}
		})
	}
}

func TestService_EnhancerSeesOriginalDraft(t *testing.T) {
	enh := &stubEnhancer{out: Draft{Subject: "S", Body: "B"}}
	svc := NewService(enh, &stubSender{}, quietLogger())

	svc.Execute(context.Background(), Input{RecipientEmail: "user@example.com", Subject: "Orig", Body: "Draft"})
	assert.Equal(t, []Draft{{Subject: "Orig", Body: "Draft"}}, enh.seen)
}

func TestResult_Rendering(t *testing.T) {
	ok := Result{Recipient: "user@example.com", Subject: "S", Success: true, Message: "done", MessageID: "m1"}
	assert.Equal(t, "Email sent to user@example.com: done", ok.Text())
	assert.JSONEq(t,
		`{"recipient":"user@example.com","subject":"S","success":true,"message":"done","message_id":"m1","task":"send_email"}`,
		ok.JSON())

	failed := Result{Recipient: "user@example.com", Message: "body is required", Retryable: true}
	assert.Equal(t, "Email failed to user@example.com: body is required", failed.Text())
	assert.NotContains(t, failed.JSON(), "Retryable")
}
