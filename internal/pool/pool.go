// Package pool runs a batch function on a fixed interval for hosts that have
// no external cron.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc is one batch. Its error is logged and does not stop the schedule.
type RunFunc func(ctx context.Context) error

// Scheduler calls run once at Start and then on every tick. Runs never
// overlap in-process; ticks missed during a long run are coalesced.
type Scheduler struct {
	run      RunFunc
	interval time.Duration
	log      *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(interval time.Duration, run RunFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{run: run, interval: interval, log: log, ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.run(s.ctx); err != nil {
		s.log.Error("scheduled run failed", "error", err)
	}
}

// Stop cancels the running batch, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
