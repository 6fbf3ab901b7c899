package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DebtStatusWorker runs the batch debt-status refresh on a cron schedule
type DebtStatusWorker struct {
	refresher  *DebtStatusService
	logger     zerolog.Logger
	schedule   cron.Schedule
	spec       string
	location   *time.Location
	runOnStart bool

	cron     *cron.Cron
	inFlight atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// DebtStatusWorkerConfig holds configuration for the debt status worker
type DebtStatusWorkerConfig struct {
	Schedule   string // standard 5-field cron expression
	Location   *time.Location
	RunOnStart bool
}

// DefaultDebtStatusWorkerConfig runs once a day at 01:00
func DefaultDebtStatusWorkerConfig() DebtStatusWorkerConfig {
	return DebtStatusWorkerConfig{
		Schedule: "0 1 * * *",
		Location: time.UTC,
	}
}

func NewDebtStatusWorker(refresher *DebtStatusService, logger zerolog.Logger, config DebtStatusWorkerConfig) (*DebtStatusWorker, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultDebtStatusWorkerConfig().Schedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid debt status schedule %q: %w", config.Schedule, err)
	}

	logger = logger.With().Str("component", "debt_status_worker").Logger()
	return &DebtStatusWorker{
		refresher:  refresher,
		logger:     logger,
		schedule:   schedule,
		spec:       config.Schedule,
		location:   config.Location,
		runOnStart: config.RunOnStart,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start schedules the refresh and returns immediately
func (w *DebtStatusWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.cron.Schedule(w.schedule, cron.FuncJob(func() { w.runScheduled(ctx) }))
	w.cron.Start()

	w.logger.Info().
		Str("schedule", w.spec).
		Str("timezone", w.location.String()).
		Time("next_run", w.schedule.Next(time.Now().In(w.location))).
		Msg("Starting debt status worker")

	go w.run(ctx)
}

func (w *DebtStatusWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	if w.runOnStart {
		w.runScheduled(ctx)
	}

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}

	// wait for a refresh that is already executing
	<-w.cron.Stop().Done()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stop unschedules the refresh and waits for an in-flight run to finish
func (w *DebtStatusWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping debt status worker")
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
	w.logger.Info().Msg("Debt status worker stopped")
}

func (w *DebtStatusWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunNow triggers a refresh outside the schedule. It fails with
// domain.ErrRefreshInProgress instead of starting a second concurrent run.
func (w *DebtStatusWorker) RunNow(ctx context.Context) (*RefreshSummary, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrRefreshInProgress
	}
	defer w.inFlight.Store(false)

	return w.refresher.RefreshAll(ctx)
}

func (w *DebtStatusWorker) runScheduled(ctx context.Context) {
	if _, err := w.RunNow(ctx); err != nil {
		if errors.Is(err, domain.ErrRefreshInProgress) {
			w.logger.Warn().Msg("Skipping debt status refresh, previous run still in progress")
			return
		}
		w.logger.Error().Err(err).Msg("Scheduled debt status refresh failed")
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
