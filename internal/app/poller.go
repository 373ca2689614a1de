package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ilinovom/stream-announce-bot/internal/service"
)

// Cycler runs one evaluation cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

// Poller runs a cycle immediately and then on every tick of the interval.
// A tick that fires while a cycle is still running is skipped by the cycler.
type Poller struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(cycler Cycler, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{cycler: cycler, interval: interval, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.tick(ctx)
		}()
	}

	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	res, err := p.cycler.RunCycle(ctx)
	switch {
	case errors.Is(err, service.ErrCycleInProgress):
		p.logger.Warn("previous cycle still running, skipping tick")
	case err != nil:
		p.logger.Error("cycle failed", "error", err)
	default:
		p.logger.Debug("cycle finished",
			"subscriptions", res.Subscriptions,
			"live", res.Live,
			"sent", res.Sent,
			"failed", res.Failed,
			"pending", res.Pending)
	}
}
