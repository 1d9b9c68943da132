// Package monitor publishes engine health metrics for the ops dashboard.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// EngineStats counts evaluation outcomes since process start
type EngineStats struct {
	Evaluations      int64 `json:"evaluations"`
	Eligible         int64 `json:"eligible"`
	Ineligible       int64 `json:"ineligible"`
	AlertsCreated    int64 `json:"alerts_created"`
	RemindersSent    int64 `json:"reminders_sent"`
	SweepsCompleted  int64 `json:"sweeps_completed"`
	ActionsExecuted  int64 `json:"actions_executed"`
	EvaluationErrors int64 `json:"evaluation_errors"`
}

// Snapshot is one published metrics sample
type Snapshot struct {
	Timestamp   time.Time   `json:"timestamp"`
	CPUUsage    float64     `json:"cpu_usage"`
	MemoryUsage float64     `json:"memory_usage"`
	Engine      EngineStats `json:"engine"`
}

// MetricsCollector accumulates engine counters and periodically publishes
// them together with host CPU and memory usage
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration
	mu       sync.RWMutex
	stats    EngineStats
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics"),
		js:       js,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start ensures the metrics stream exists and starts the collection loop
func (c *MetricsCollector) Start(ctx context.Context) error {
	if _, err := c.js.StreamInfo("METRICS"); err != nil {
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
		if _, err := c.js.AddStream(&nats.StreamConfig{
			Name:     "METRICS",
			Subjects: []string{"metrics.*"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
		}); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		c.logger.Info("Created metrics stream", zap.String("name", "METRICS"))
	}

	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
	return nil
}

// Stop stops the collection loop
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// RecordEvaluation counts one evaluation run
func (c *MetricsCollector) RecordEvaluation(eligible bool, warnings int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evaluations++
	if eligible {
		c.stats.Eligible++
	} else {
		c.stats.Ineligible++
	}
	if warnings > 0 {
		c.stats.EvaluationErrors++
	}
}

// RecordAlertCreated counts one new alert
func (c *MetricsCollector) RecordAlertCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.AlertsCreated++
}

// RecordReminderSent counts one dispatched reminder
func (c *MetricsCollector) RecordReminderSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.RemindersSent++
}

// RecordSweep counts one completed sweep and its executed actions
func (c *MetricsCollector) RecordSweep(executed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.SweepsCompleted++
	c.stats.ActionsExecuted += int64(executed)
}

// Stats returns a copy of the current counters
func (c *MetricsCollector) Stats() EngineStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.publish()
		}
	}
}

func (c *MetricsCollector) publish() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	snapshot := Snapshot{
		Timestamp:   time.Now(),
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		Engine:      c.Stats(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish("metrics.engine", data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics published",
		zap.Float64("cpu_usage", snapshot.CPUUsage),
		zap.Float64("memory_usage", snapshot.MemoryUsage),
		zap.Int64("evaluations", snapshot.Engine.Evaluations))
}
