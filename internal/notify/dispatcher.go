// Package notify hands fired reminders to the delivery bus. Consumers on
// the CRM side (push gateway, mail sender) pick them up per method; this
// process never talks to end-user channels directly.
package notify

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
)

const (
	// StreamName is the JetStream stream holding outbound reminders
	StreamName = "REMINDERS"
	// subjectPrefix is completed with the delivery method
	// (reminder.push, reminder.sms, reminder.email)
	subjectPrefix = "reminder"

	streamMaxAge = 7 * 24 * time.Hour
)

// NATSDispatcher publishes reminders to JetStream, one subject per delivery
// method
type NATSDispatcher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNATSDispatcher creates the dispatcher and ensures the stream exists
func NewNATSDispatcher(js nats.JetStreamContext, logger *zap.Logger) (*NATSDispatcher, error) {
	d := &NATSDispatcher{
		js:     js,
		logger: logger.Named("notify"),
	}

	_, err := js.StreamInfo(StreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{subjectPrefix + ".*"},
			Storage:  nats.FileStorage,
			MaxAge:   streamMaxAge,
			MaxMsgs:  -1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		d.logger.Info("Created reminder stream", zap.String("name", StreamName))
	} else {
		d.logger.Info("Using existing reminder stream", zap.String("name", StreamName))
	}

	return d, nil
}

// Dispatch publishes one reminder on its method subject
func (d *NATSDispatcher) Dispatch(ctx context.Context, reminder *model.Reminder) error {
	data, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, reminder.Method)
	if _, err := d.js.Publish(subject, data); err != nil {
		d.logger.Error("Failed to publish reminder",
			zap.String("reminder_id", reminder.ID),
			zap.String("subject", subject),
			zap.Error(err))
		return err
	}

	d.logger.Info("Reminder published",
		zap.String("reminder_id", reminder.ID),
		zap.String("subject_id", reminder.SubjectID),
		zap.String("method", string(reminder.Method)),
		zap.Int("attempt", reminder.CurrentAttempts+1))
	return nil
}

// Subscribe delivers published reminders to a handler. Used by test
// harnesses and by in-process consumers.
func (d *NATSDispatcher) Subscribe(ctx context.Context, method model.ReminderMethod, handler func(*model.Reminder)) error {
	subject := fmt.Sprintf("%s.%s", subjectPrefix, method)
	sub, err := d.js.Subscribe(subject, func(msg *nats.Msg) {
		var reminder model.Reminder
		if err := json.Unmarshal(msg.Data, &reminder); err != nil {
			d.logger.Error("Failed to unmarshal reminder", zap.Error(err))
			return
		}
		handler(&reminder)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
