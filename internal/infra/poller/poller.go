// Package poller implements the adaptive status polling loop shared by every
// job kind and by anything else that needs to watch a remote value.
package poller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"jobsync-client/internal/infra/metrics"
	"jobsync-client/internal/infra/visibility"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Outcome is what one poll reports back to the loop.
type Outcome struct {
	// Stop ends the loop for good.
	Stop bool
	// Fingerprint summarises the fields the UI cares about. A change resets
	// backoff to the base delay.
	Fingerprint string
}

// PollFunc performs one status check. ctx is cancelled when the loop is.
type PollFunc func(ctx context.Context) (Outcome, error)

// ErrorFunc receives transient errors. The loop keeps going afterwards.
type ErrorFunc func(err error)

type Options struct {
	Name           string
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         float64
	HiddenMinDelay time.Duration

	Clock      clockwork.Clock
	Visibility visibility.Source
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand   func() float64
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "poll"
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = 30 * time.Second
		if o.MaxDelay < o.BaseDelay {
			o.MaxDelay = o.BaseDelay
		}
	}
	if o.Multiplier <= 1 {
		o.Multiplier = 1.5
	}
	if o.Jitter < 0 || o.Jitter >= 1 {
		o.Jitter = 0.2
	}
	if o.HiddenMinDelay <= 0 {
		o.HiddenMinDelay = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Visibility == nil {
		o.Visibility = visibility.AlwaysVisible{}
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// State is a copy of a loop's bookkeeping.
type State struct {
	Delay           time.Duration
	NextDelay       time.Duration
	LastFingerprint string
	InFlight        bool
	Cancelled       bool
	Polls           int
}

// loopState belongs to exactly one Handle.
type loopState struct {
	delay           time.Duration // backoff before jitter and visibility floor
	next            time.Duration // what was actually scheduled
	lastFingerprint string
	seen            bool
	inFlight        bool
	cancelled       bool
	polls           int
}

// observe records a successful poll and returns the backoff for the next tick.
func (s *loopState) observe(fp string, o Options) time.Duration {
	changed := !s.seen || fp != s.lastFingerprint
	s.seen = true
	s.lastFingerprint = fp
	if changed || s.delay <= 0 {
		s.delay = o.BaseDelay
		return s.delay
	}
	return s.grow(o)
}

// failed records a transient error; errors never count as new information.
func (s *loopState) failed(o Options) time.Duration {
	if s.delay <= 0 {
		s.delay = o.BaseDelay
		return s.delay
	}
	return s.grow(o)
}

func (s *loopState) grow(o Options) time.Duration {
	next := time.Duration(float64(s.delay) * o.Multiplier)
	if next > o.MaxDelay {
		next = o.MaxDelay
	}
	if next < s.delay {
		next = s.delay
	}
	s.delay = next
	return s.delay
}

// reset makes the next observed poll schedule at the base delay.
func (s *loopState) reset() { s.delay = 0 }

// schedule applies jitter and the background floor to a backoff value.
func schedule(backoff time.Duration, hidden bool, o Options) time.Duration {
	factor := 1 + o.Jitter*(2*o.Rand()-1)
	d := time.Duration(float64(backoff) * factor)
	if d < 0 {
		d = backoff
	}
	if hidden && d < o.HiddenMinDelay {
		d = o.HiddenMinDelay
	}
	return d
}

// Handle controls one running loop.
type Handle struct {
	opts   Options
	cancel context.CancelFunc
	nudge  chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	state loopState
}

// Start launches a loop that polls immediately and then adaptively until fn
// reports Stop, ctx ends, or Cancel is called. Only one poll is ever in
// flight per loop.
func Start(ctx context.Context, fn PollFunc, onError ErrorFunc, opts Options) *Handle {
	opts = opts.withDefaults()
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		opts:   opts,
		cancel: cancel,
		nudge:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	metrics.PollLoopStarted(opts.Name)
	go h.run(loopCtx, fn, onError)
	return h
}

// Cancel stops the loop, aborts the outstanding request and drops any pending
// timer. Safe to call more than once.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.state.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

// Nudge asks for an immediate out-of-cycle poll. Nudges while a poll is in
// flight collapse into one follow-up poll.
func (h *Handle) Nudge() {
	select {
	case h.nudge <- struct{}{}:
	default:
	}
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		Delay:           h.state.delay,
		NextDelay:       h.state.next,
		LastFingerprint: h.state.lastFingerprint,
		InFlight:        h.state.inFlight,
		Cancelled:       h.state.cancelled,
		Polls:           h.state.polls,
	}
}

func (h *Handle) run(ctx context.Context, fn PollFunc, onError ErrorFunc) {
	o := h.opts
	defer close(h.done)
	defer metrics.PollLoopStopped(o.Name)

	visCh, release := o.Visibility.Subscribe()
	defer release()

	for {
		h.mu.Lock()
		h.state.inFlight = true
		h.state.polls++
		h.mu.Unlock()

		out, err := fn(ctx)

		h.mu.Lock()
		h.state.inFlight = false
		if ctx.Err() != nil {
			// cancelled while the request was outstanding; whatever came back is stale
			h.state.cancelled = true
			h.mu.Unlock()
			return
		}
		var backoff time.Duration
		switch {
		case err != nil:
			backoff = h.state.failed(o)
		case out.Stop:
			h.mu.Unlock()
			metrics.IncPollAttempt(o.Name, "stopped")
			return
		default:
			prev := h.state.lastFingerprint
			backoff = h.state.observe(out.Fingerprint, o)
			if prev == out.Fingerprint && h.state.polls > 1 {
				metrics.IncPollAttempt(o.Name, "unchanged")
			} else {
				metrics.IncPollAttempt(o.Name, "changed")
			}
		}
		hidden := o.Visibility.Hidden()
		delay := schedule(backoff, hidden, o)
		h.state.next = delay
		h.mu.Unlock()

		if err != nil {
			metrics.IncPollAttempt(o.Name, "error")
			o.Logger.Debug().Err(err).Str("loop", o.Name).Dur("next", delay).Msg("poll failed; backing off")
			if onError != nil {
				onError(err)
			}
			if ctx.Err() != nil {
				return
			}
		}
		metrics.ObservePollDelay(o.Name, hidden, delay)

		if !h.wait(ctx, delay, visCh) {
			return
		}
	}
}

// wait blocks until the next poll is due. It returns false when the loop
// must exit.
func (h *Handle) wait(ctx context.Context, delay time.Duration, visCh <-chan bool) bool {
	timer := h.opts.Clock.NewTimer(delay)
	defer timer.Stop()
	deadline := h.opts.Clock.Now().Add(delay)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case <-h.nudge:
			return true
		case hidden := <-visCh:
			if hidden {
				// the pending wait gets the background floor too
				if remaining := deadline.Sub(h.opts.Clock.Now()); remaining < h.opts.HiddenMinDelay {
					timer.Reset(h.opts.HiddenMinDelay)
					deadline = h.opts.Clock.Now().Add(h.opts.HiddenMinDelay)
					h.mu.Lock()
					h.state.next = h.opts.HiddenMinDelay
					h.mu.Unlock()
				}
				continue
			}
			// back in the foreground: poll now and start over from base delay
			h.mu.Lock()
			h.state.reset()
			h.mu.Unlock()
			return true
		}
	}
}
