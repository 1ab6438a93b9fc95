package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// State is the lifecycle phase of a WakeScheduler.
type State int32

const (
	StateStopped State = iota
	StateIdle
	StateSleeping
	StateChecking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSleeping:
		return "sleeping"
	case StateChecking:
		return "checking"
	default:
		return "stopped"
	}
}

// ErrAlreadyRunning is returned by Run on a scheduler that is running.
var ErrAlreadyRunning = errors.New("scheduler already running")

// FireFunc claims, notifies and advances or deletes one due obligation.
type FireFunc func(ctx context.Context, o model.Obligation, horizon, now time.Time) (bool, error)

// WakeOptions tune a WakeScheduler.
type WakeOptions struct {
	// LeadTime is how long before the due instant an obligation fires.
	LeadTime time.Duration
	// IdlePoll is the wait when no obligation of the class exists.
	IdlePoll time.Duration
	// MaxSleep caps a single sleep so writes from other processes are
	// picked up eventually. Zero means no cap.
	MaxSleep time.Duration
	Now      func() time.Time
}

// PassResult summarizes one check pass.
type PassResult struct {
	ID      string
	Due     int
	Fired   int
	Skipped int
	Failed  int
}

// WakeScheduler sleeps until shortly before the next obligation of its class
// falls due, then fires everything inside the lead window. One instance runs
// per obligation class.
type WakeScheduler struct {
	class  model.Class
	oracle *Oracle
	fire   FireFunc
	opts   WakeOptions
	log    zerolog.Logger

	wake    chan struct{}
	running atomic.Bool
	state   atomic.Int32

	mu     sync.Mutex
	runCtx context.Context
	passes sync.WaitGroup
}

func NewWakeScheduler(class model.Class, oracle *Oracle, fire FireFunc, opts WakeOptions, log zerolog.Logger) *WakeScheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = time.Minute
	}
	return &WakeScheduler{
		class:  class,
		oracle: oracle,
		fire:   fire,
		opts:   opts,
		log:    log.With().Str("class", string(class)).Logger(),
		wake:   make(chan struct{}, 1),
	}
}

// State reports the current lifecycle phase.
func (s *WakeScheduler) State() State { return State(s.state.Load()) }

// Running reports whether Run is active.
func (s *WakeScheduler) Running() bool { return s.running.Load() }

// Run drives the Idle/Sleeping/Checking loop until ctx is cancelled. It waits
// for one-off passes started by Preempt before returning.
func (s *WakeScheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running.Store(false)
		s.runCtx = nil
		s.mu.Unlock()
		s.passes.Wait()
		s.setState(StateStopped)
		s.log.Info().Msg("scheduler stopped")
	}()

	s.log.Info().Dur("lead", s.opts.LeadTime).Msg("scheduler started")

	backoff := false
	for {
		if ctx.Err() != nil {
			return nil
		}

		delay, idle := s.nextWake(ctx)
		if backoff && delay <= 0 {
			// The previous pass fired nothing although something is due; do
			// not spin on an obligation that keeps failing.
			delay = s.opts.IdlePoll
		}

		if delay > 0 {
			if idle {
				s.setState(StateIdle)
			} else {
				s.setState(StateSleeping)
			}
			s.log.Debug().Dur("delay", delay).Bool("idle", idle).Msg("waiting")
			switch s.sleep(ctx, delay) {
			case wokeCancelled:
				return nil
			case wokeSignal:
				backoff = false
				continue
			}
		}

		s.setState(StateChecking)
		res := s.CheckOnce(ctx)
		backoff = res.Fired == 0
	}
}

// Preempt asks for an out-of-band check because an obligation that may fall
// due before the current wake point was just inserted. It starts a detached
// one-off pass and signals the loop to recompute its sleep. It does nothing
// and returns false when the scheduler is not running.
func (s *WakeScheduler) Preempt() bool {
	if !s.running.Load() {
		return false
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.mu.Lock()
	ctx := s.runCtx
	if !s.running.Load() || ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.passes.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.passes.Done()
		s.CheckOnce(ctx)
	}()
	return true
}

// CheckOnce fires every obligation of the class due within the lead window,
// earliest first. Failures of single obligations are logged and skipped.
func (s *WakeScheduler) CheckOnce(ctx context.Context) PassResult {
	res := PassResult{ID: uuid.NewString()}
	log := s.log.With().Str("pass", res.ID).Logger()

	now := s.opts.Now()
	horizon := now.Add(s.opts.LeadTime)

	due, err := s.oracle.DueBefore(ctx, s.class, horizon)
	if err != nil {
		log.Error().Err(err).Msg("list due obligations")
		res.Failed++
		return res
	}
	res.Due = len(due)

	for _, o := range due {
		if ctx.Err() != nil {
			break
		}
		fired, err := s.fire(ctx, o, horizon, now)
		switch {
		case errors.Is(err, repository.ErrNoParticipants):
			log.Warn().Uint("id", o.ID).Str("desc", o.Description).Msg("skipping task without participants")
			res.Failed++
		case err != nil:
			log.Error().Err(err).Uint("id", o.ID).Msg("fire obligation")
			res.Failed++
		case fired:
			log.Info().Uint("id", o.ID).Str("desc", o.Description).Time("due", o.Due).Msg("obligation fired")
			res.Fired++
		default:
			res.Skipped++
		}
	}

	ev := log.Debug()
	if res.Fired > 0 || res.Failed > 0 {
		ev = log.Info()
	}
	ev.Int("due", res.Due).Int("fired", res.Fired).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("check pass done")
	return res
}

// nextWake computes how long to wait before the next check. idle is true when
// the class is empty.
func (s *WakeScheduler) nextWake(ctx context.Context) (delay time.Duration, idle bool) {
	next, ok, err := s.oracle.NextDue(ctx, s.class)
	if err != nil {
		s.log.Error().Err(err).Msg("compute next due")
		return s.opts.IdlePoll, true
	}
	if !ok {
		return s.opts.IdlePoll, true
	}
	delay = next.Add(-s.opts.LeadTime).Sub(s.opts.Now())
	if s.opts.MaxSleep > 0 && delay > s.opts.MaxSleep {
		delay = s.opts.MaxSleep
	}
	return delay, false
}

type wakeReason int

const (
	wokeTimer wakeReason = iota
	wokeSignal
	wokeCancelled
)

func (s *WakeScheduler) sleep(ctx context.Context, d time.Duration) wakeReason {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return wokeTimer
	case <-s.wake:
		return wokeSignal
	case <-ctx.Done():
		return wokeCancelled
	}
}

func (s *WakeScheduler) setState(st State) { s.state.Store(int32(st)) }
