package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coregx/fesdql/internal/logger"
)

// maxPingTimeout bounds a single health ping.
const maxPingTimeout = 5 * time.Second

// healthStatus is the outcome of one ping round over the open clients.
type healthStatus struct {
	err error
	at  time.Time
}

// healthChecker pings the registry's clients every interval. A failed round
// marks the registry unhealthy until a later round succeeds.
type healthChecker struct {
	ping     func(ctx context.Context) error
	logger   logger.Logger
	interval time.Duration

	status atomic.Pointer[healthStatus]
	cancel context.CancelFunc
	done   chan struct{}
}

func newHealthChecker(ping func(ctx context.Context) error, log logger.Logger, interval time.Duration) *healthChecker {
	h := &healthChecker{
		ping:     ping,
		logger:   log.With("component", "health_checker"),
		interval: interval,
		done:     make(chan struct{}),
	}
	h.status.Store(&healthStatus{})
	return h
}

func (h *healthChecker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.checkContext(ctx)
			}
		}
	}()
}

// check runs one ping round outside the loop.
func (h *healthChecker) check() {
	h.checkContext(context.Background())
}

func (h *healthChecker) checkContext(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, min(h.interval, maxPingTimeout))
	defer cancel()

	started := time.Now()
	err := h.ping(ctx)
	h.status.Store(&healthStatus{err: err, at: time.Now()})

	if err != nil {
		h.logger.Warn("ping failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return
	}
	h.logger.Debug("ping ok", "duration_ms", time.Since(started).Milliseconds())
}

// shutdown stops the loop started by start and waits for it to exit.
func (h *healthChecker) shutdown() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *healthChecker) isHealthy() bool {
	return h.status.Load().err == nil
}

func (h *healthChecker) lastCheck() time.Time {
	return h.status.Load().at
}
