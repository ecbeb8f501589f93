// Package scheduler fires a job once a day at a fixed wall-clock time in a
// named timezone.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
)

// Func is a scheduled job. firedAt is the local time the job started.
type Func func(ctx context.Context, firedAt time.Time)

// Trigger is a daily hh:mm in Location.
type Trigger struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Validate checks the time of day and that a location is set.
func (t Trigger) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour %d out of range", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range", t.Minute)
	}
	if t.Location == nil {
		return fmt.Errorf("location is required")
	}
	return nil
}

func (t Trigger) String() string {
	name := "UTC"
	if t.Location != nil {
		name = t.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", t.Hour, t.Minute, name)
}

// NextOccurrence returns the first hour:minute in loc strictly after now:
// today when now is before it, otherwise tomorrow.
func NextOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !local.Before(next) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Scheduler owns at most one armed daily loop per process.
type Scheduler struct {
	logger    *slog.Logger
	fireOnArm bool

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	armed  atomic.Bool
	mu     sync.Mutex
	handle *Handle
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithFireOnArm runs the job once immediately when the loop is armed,
// before waiting for the first trigger instant.
func WithFireOnArm(enabled bool) Option {
	return func(s *Scheduler) { s.fireOnArm = enabled }
}

func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: logger,
		now:    time.Now,
		wait:   sleepContext,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle controls an armed loop.
type Handle struct {
	trigger Trigger
	cancel  context.CancelFunc
	done    chan struct{}
	next    atomic.Int64 // unix nanos of the pending trigger instant

	lastFired time.Time // owned by the loop goroutine
}

// Trigger returns the daily time this handle fires at.
func (h *Handle) Trigger() Trigger { return h.trigger }

// Next returns the pending trigger instant, or zero before it is computed.
func (h *Handle) Next() time.Time {
	n := h.next.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).In(h.trigger.Location)
}

// Stop cancels the pending wait and blocks until the loop has exited.
// Safe to call more than once.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Armed reports whether Arm has been called.
func (s *Scheduler) Armed() bool { return s.armed.Load() }

// Handle returns the active handle, or nil if nothing is armed.
func (s *Scheduler) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Arm starts the daily loop. onFire runs at every trigger instant;
// onMonthStart additionally runs after it when the local day-of-month is 1.
// Arming an already armed scheduler is a no-op that returns the existing
// handle.
func (s *Scheduler) Arm(ctx context.Context, t Trigger, onFire, onMonthStart Func) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed.CompareAndSwap(false, true) {
		s.logger.Info("scheduler already armed, ignoring", "trigger", s.handle.trigger.String())
		return s.handle
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		trigger: t,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.handle = h
	s.logger.Info("scheduler armed", "trigger", t.String(), "fire_on_arm", s.fireOnArm)

	go s.run(loopCtx, h, onFire, onMonthStart)
	return h
}

// Stop stops the armed loop, if any. The scheduler stays armed: a stopped
// process does not rearm.
func (s *Scheduler) Stop() {
	if h := s.Handle(); h != nil {
		h.Stop()
	}
}

func (s *Scheduler) run(ctx context.Context, h *Handle, onFire, onMonthStart Func) {
	defer close(h.done)

	if s.fireOnArm {
		s.fire(ctx, h.trigger, onFire, onMonthStart)
	}

	for {
		next := NextOccurrence(s.now(), h.trigger.Hour, h.trigger.Minute, h.trigger.Location)
		// An early wakeup would otherwise land on the instant just fired.
		if !h.lastFired.IsZero() && !next.After(h.lastFired) {
			next = NextOccurrence(h.lastFired, h.trigger.Hour, h.trigger.Minute, h.trigger.Location)
		}
		h.next.Store(next.UnixNano())
		metrics.SchedulerNextFire.Set(float64(next.Unix()))

		delay := next.Sub(s.now())
		s.logger.Info("next scheduled run", "at", next.Format(time.RFC3339), "in", delay.Round(time.Second).String())

		if err := s.wait(ctx, delay); err != nil {
			s.logger.Info("scheduler stopped", "reason", err)
			return
		}
		h.lastFired = next
		s.fire(ctx, h.trigger, onFire, onMonthStart)
	}
}

func (s *Scheduler) fire(ctx context.Context, t Trigger, onFire, onMonthStart Func) {
	firedAt := s.now().In(t.Location)
	s.invoke(ctx, "daily", onFire, firedAt)
	if firedAt.Day() == 1 {
		s.invoke(ctx, "month_start", onMonthStart, firedAt)
	}
}

// invoke runs fn and swallows panics so the loop always rearms.
func (s *Scheduler) invoke(ctx context.Context, kind string, fn Func, firedAt time.Time) {
	if fn == nil {
		return
	}
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.logger.Error("scheduled job panicked", "job", kind, "panic", r, "stack", string(debug.Stack()))
		}
		metrics.SchedulerFiresTotal.WithLabelValues(kind, status).Inc()
	}()
	fn(ctx, firedAt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
