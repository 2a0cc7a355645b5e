// Package scheduler polls schedule-triggered chains and starts a run for each
// chain whose interval has elapsed since its latest execution.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// Poller defaults.
const (
	DefaultPollInterval    = 60 * time.Second
	DefaultIntervalMinutes = 60
)

// ScheduleTrigger creates and dispatches a run for a due chain. Satisfied by *trigger.Service.
type ScheduleTrigger interface {
	TriggerSchedule(ctx context.Context, chain *store.Chain, at time.Time) (*store.Execution, error)
}

// Config holds poller settings.
type Config struct {
	PollInterval           time.Duration // cadence of PollSchedules
	DefaultIntervalMinutes int           // used when a chain sets no interval_minutes
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DefaultIntervalMinutes <= 0 {
		c.DefaultIntervalMinutes = DefaultIntervalMinutes
	}
	return c
}

// Poller is a level-triggered scheduler: each poll starts one run for every
// active schedule chain that has gone at least its interval without one.
// Missed polls are caught up on the next one.
type Poller struct {
	store   store.Store
	trigger ScheduleTrigger
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(s store.Store, trig ScheduleTrigger, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:   s,
		trigger: trig,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// PollSchedules examines every active schedule chain once and triggers the due
// ones. It returns the number of chains examined. Per-chain failures are
// logged and do not stop the poll.
func (p *Poller) PollSchedules(ctx context.Context) (int, error) {
	chains, err := store.ListActiveScheduledChains(ctx, p.store)
	if err != nil {
		return 0, fmt.Errorf("list scheduled chains: %w", err)
	}

	now := p.now().UTC()
	triggered := 0
	for _, chain := range chains {
		if ctx.Err() != nil {
			return len(chains), ctx.Err()
		}
		log := logging.LogWith(logging.WithChainID(ctx, chain.ID), p.logger)

		due, err := p.due(ctx, chain, now)
		if err != nil {
			log.Error("check schedule", "error", err)
			continue
		}
		if !due {
			continue
		}
		if _, err := p.trigger.TriggerSchedule(ctx, chain, now); err != nil {
			log.Error("trigger scheduled chain", "error", err)
			continue
		}
		triggered++
	}

	if triggered > 0 {
		p.logger.Info("schedule poll", "checked", len(chains), "triggered", triggered)
	}
	return len(chains), nil
}

// due reports whether the chain has no execution or its latest one was created
// at least one interval before now.
func (p *Poller) due(ctx context.Context, chain *store.Chain, now time.Time) (bool, error) {
	latest, err := p.store.LatestExecutionFor(ctx, chain.ID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return now.Sub(latest.CreatedAt) >= p.interval(chain), nil
}

func (p *Poller) interval(chain *store.Chain) time.Duration {
	minutes := p.cfg.DefaultIntervalMinutes
	switch v := chain.TriggerConfig[schema.TriggerConfigIntervalMinutes].(type) {
	case float64:
		minutes = int(v)
	case int:
		minutes = v
	case int64:
		minutes = int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			minutes = int(n)
		}
	}
	if minutes <= 0 {
		minutes = p.cfg.DefaultIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Start polls once immediately and then on every PollInterval. A poll still
// running when the next one is due is skipped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return fmt.Errorf("poller already started")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{logger: p.logger}
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if _, err := p.PollSchedules(pollCtx); err != nil && pollCtx.Err() == nil {
			p.logger.Error("schedule poll failed", "error", err)
		}
	}))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(p.cfg.PollInterval), job)
	c.Start()

	p.initial.Add(1)
	go func() {
		defer p.initial.Done()
		job.Run()
	}()

	p.cron = c
	p.cancel = cancel
	p.logger.Info("schedule poller started", "poll_interval", p.cfg.PollInterval.String())
	return nil
}

// Stop halts polling and waits for a poll in progress to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		return
	}
	p.cancel()
	<-p.cron.Stop().Done()
	p.initial.Wait()
	p.cron = nil
	p.cancel = nil
	p.logger.Info("schedule poller stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
