// Package alert implements txrunner.Signaler's listener-notification side
// as operator email, with a local/production Sender split:
// ENV=local logs the alert instead of sending it.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// Sender delivers a single alert email. It never returns an error to the
// caller that matters operationally — a failed alert is logged, not
// retried, since the scheduler must not stall on its own error channel.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs the alert instead of sending it — used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("scheduler alert (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends the alert via the Resend API.
type ResendSender struct {
	client *resend.Client
	from string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From: s.from,
		To: []string{to},
		Subject: subject,
		Html: body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from: from,
	}
}

// Signaler adapts a Sender into txrunner.Signaler. SignalSchedulingChange
// is a no-op here, and nothing in cmd/jobstored consumes the wake-up hint
// either.
type Signaler struct {
	sender Sender
	to string
	logger *slog.Logger
}

// NewSignaler builds a Signaler. to may be empty, in which case error
// events are logged but no email is sent.
func NewSignaler(sender Sender, to string, logger *slog.Logger) *Signaler {
	return &Signaler{sender: sender, to: to, logger: logger}
}

func (s *Signaler) SignalSchedulingChange(earliestNewFireTime *time.Time) {}

func (s *Signaler) NotifySchedulerListenersError(msg string, err error) {
	s.logger.Error("scheduler listener error", "msg", msg, "error", err)
	if s.to == "" {
		return
	}
	body := fmt.Sprintf("<p>%s</p><pre>%v</pre>", msg, err)
	if sendErr := s.sender.Send(context.Background(), s.to, "Scheduler error: "+msg, body); sendErr != nil {
		s.logger.Error("failed to send alert email", "error", sendErr)
	}
}

func (s *Signaler) NotifySchedulerListenersJobDeleted(jobKey fmt.Stringer) {
	s.logger.Info("job deleted", "job", jobKey.String())
}

func (s *Signaler) NotifySchedulerListenersFinalized(trigger any) {
	s.logger.Debug("trigger finalized", "trigger", trigger)
}

func (s *Signaler) NotifyTriggerListenersMisfired(trigger any) {
	s.logger.Warn("trigger misfired", "trigger", trigger)
}
