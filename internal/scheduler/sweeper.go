// Package scheduler drives the periodic scheduled-action sweep. The cron
// process only decides WHEN a sweep runs; all action semantics live in the
// alerts manager.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
)

// DefaultExpression runs the sweep every hour on the hour
const DefaultExpression = "0 0 * * * *"

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// Sweeper runs the scheduled-action sweep on a cron cadence
type Sweeper struct {
	logger  *zap.Logger
	manager *alerts.Manager
	cron    *cron.Cron
	entryID cron.EntryID
	now     func() time.Time
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock overrides the sweeper's time source
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper firing on the given cron expression
// (seconds-resolution, e.g. "0 0 * * * *" for hourly)
func NewSweeper(logger *zap.Logger, manager *alerts.Manager, expression string, opts ...Option) (*Sweeper, error) {
	if expression == "" {
		expression = DefaultExpression
	}

	cronLogger := &cronLogger{logger: logger.Named("cron")}
	s := &Sweeper{
		logger:  logger.Named("sweeper"),
		manager: manager,
		now:     time.Now,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	entryID, err := s.cron.AddFunc(expression, func() {
		if _, err := s.Tick(context.Background(), s.now()); err != nil {
			s.logger.Error("Sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep expression %q: %w", expression, err)
	}
	s.entryID = entryID

	s.logger.Info("Sweeper configured", zap.String("expression", expression))
	return s, nil
}

// Start starts the cron loop
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("Sweeper started", zap.Time("next_run", s.cron.Entry(s.entryID).Next))
}

// Stop stops the cron loop and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Sweeper stopped")
}

// Tick runs one sweep at the given instant. Called by the cron loop and by
// the manual trigger endpoint. An overlapping manual tick is reported as
// already running, not as a failure.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) (int, error) {
	executed, err := s.manager.ProcessScheduledActions(ctx, now)
	if err != nil {
		if errors.Is(err, alerts.ErrSweepInProgress) {
			s.logger.Warn("Sweep already in progress, skipping")
			return 0, err
		}
		return 0, fmt.Errorf("scheduled action sweep: %w", err)
	}

	s.logger.Debug("Sweep tick completed",
		zap.Time("now", now),
		zap.Int("executed", executed))
	return executed, nil
}
