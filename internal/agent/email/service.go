// Package email implements the agent's paid task: improve a draft email and deliver it.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Result is the outcome of one email task
type Result struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`

	// Retryable marks failures a later attempt may fix
	Retryable bool `json:"-"`
}

// Text is the human readable result line stored as the job result
func (r Result) Text() string {
	verb := "failed"
	if r.Success {
		verb = "sent"
	}
	return fmt.Sprintf("Email %s to %s: %s", verb, r.Recipient, r.Message)
}

// JSON renders the result with the task name, as reported to purchasers
func (r Result) JSON() string {
	out, _ := json.Marshal(struct {
		Result
		Task string `json:"task"`
	}{Result: r, Task: "send_email"})
	return string(out)
}

// Service runs email tasks
type Service struct {
	enhancer Enhancer
	sender   Sender
	logger   *slog.Logger
}

// NewService creates the task runner. A nil enhancer sends drafts unchanged.
func NewService(enhancer Enhancer, sender Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{enhancer: enhancer, sender: sender, logger: logger}
}

// Execute improves and sends one email. Failures are reported in the Result, never as an error.
func (s *Service) Execute(ctx context.Context, in Input) Result {
	s.logger.Info("Sending email",
		slog.String("recipient", in.RecipientEmail),
		slog.String("subject", in.Subject),
	)

	draft := s.enhance(ctx, Draft{Subject: in.Subject, Body: in.Body})

	fail := func(msg string) Result {
		s.logger.Error("Email task failed",
			slog.String("recipient", in.RecipientEmail),
			slog.String("reason", msg),
		)
		return Result{Recipient: in.RecipientEmail, Subject: draft.Subject, Message: msg}
	}

	switch {
	case strings.TrimSpace(in.RecipientEmail) == "":
		return fail("recipient_email is required")
	case draft.Subject == "":
		return fail("subject is required")
	case draft.Body == "":
		return fail("body is required")
	}
	if err := s.sender.Ready(); err != nil {
		return fail(err.Error())
	}

	id, err := s.sender.Send(ctx, Message{To: in.RecipientEmail, Subject: draft.Subject, Text: draft.Body})
	if err != nil {
		r := fail(err.Error())
		var de *DeliveryError
		r.Retryable = errors.As(err, &de) && de.Temporary() && ctx.Err() == nil
		return r
	}

	msg := fmt.Sprintf("Email sent successfully to %s (Message ID: %s)", in.RecipientEmail, id)
	s.logger.Info(msg)

	return Result{
		Recipient: in.RecipientEmail,
		Subject:   draft.Subject,
		Success:   true,
		Message:   msg,
		MessageID: id,
	}
}

func (s *Service) enhance(ctx context.Context, d Draft) Draft {
	if s.enhancer == nil {
		return d
	}

	s.logger.Info("Enhancing email")
	out, err := s.enhancer.Enhance(ctx, d)
	if err != nil {
		s.logger.Warn("Email enhancement failed, using original subject/body", slog.Any("error", err))
		return d
	}
	s.logger.Info("Email enhancement completed")
	return out
}
