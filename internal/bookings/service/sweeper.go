package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"medibook/pkg/logger"
)

// LockSweeper periodically removes expired reservation locks. Expiry is
// always checked at use time, so the sweep only reclaims storage.
type LockSweeper struct {
	locks    LockService
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

func NewLockSweeper(locks LockService, interval, timeout time.Duration, log *logger.Logger) *LockSweeper {
	return &LockSweeper{
		locks:    locks,
		interval: interval,
		timeout:  timeout,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *LockSweeper) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

func (s *LockSweeper) run() {
	defer close(s.done)
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *LockSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.locks.SweepExpired(ctx)
	if err != nil {
		s.log.Error("Lock sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Debug("Expired reservation locks removed", "count", n)
	}
}

// Stop ends the loop and waits for an in-flight sweep.
func (s *LockSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.done
	}
}
