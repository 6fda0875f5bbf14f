package media

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var ErrQuit = errors.New("media: quit requested")

type PresenterState uint8

const (
	StateIdle PresenterState = iota
	StateHolding
	StatePresenting
)

func (s PresenterState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHolding:
		return "Holding"
	case StatePresenting:
		return "Presenting"
	default:
		return "Unknown"
	}
}

type PresenterConfig struct {
	// PopTimeout bounds each wait for a new frame so events keep being polled.
	PopTimeout time.Duration
	// HoldPoll caps a single sleep while a frame is not yet due.
	HoldPoll time.Duration
	// Slack is how far behind the audio clock a frame may be before it is
	// dropped.
	Slack time.Duration
	// NominalDelay is the frame spacing assumed when the next timestamp is
	// unknown.
	NominalDelay time.Duration
}

// VideoPresenter paces decoded video frames against the audio clock and hands
// them to a Surface. Frames that fall too far behind are dropped; frames
// ahead of the clock are held until due.
type VideoPresenter struct {
	queue   *FrameQueue
	clock   *Clock
	surface Surface
	events  EventSource
	cfg     PresenterConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	state      PresenterState
	current    *Frame
	frameTimer time.Time
	delay      time.Duration

	presented atomic.Int64
	dropped   atomic.Int64
}

// NewVideoPresenter returns a presenter reading from queue. clock and events
// may be nil: without a clock frames are paced by their own timestamps only.
func NewVideoPresenter(queue *FrameQueue, clock *Clock, surface Surface, events EventSource, cfg PresenterConfig) *VideoPresenter {
	return &VideoPresenter{
		queue:   queue,
		clock:   clock,
		surface: surface,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
		delay:   cfg.NominalDelay,
	}
}

// Run drives the presenter until the video queue ends, the queue is aborted,
// a quit event arrives or ctx is done. It returns nil at end of stream.
func (vp *VideoPresenter) Run(ctx context.Context) error {
	defer vp.releaseCurrent()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if vp.pollQuit() {
			return ErrQuit
		}

		done, err := vp.Step(ctx)
		if done {
			return err
		}
	}
}

func (vp *VideoPresenter) pollQuit() bool {
	if vp.events == nil {
		return false
	}

	for {
		ev, ok := vp.events.Poll()
		if !ok {
			return false
		}

		switch ev.Type {
		case EventQuit, EventKey:
			log.Info().Str("component", "presenter").Str("key", ev.Key).Msg("quit requested")
			return true
		}
	}
}

// Step performs a single state transition. done is true once the presenter
// cannot make further progress.
func (vp *VideoPresenter) Step(ctx context.Context) (done bool, err error) {
	if vp.queue.Aborted() {
		return true, ErrAborted
	}

	switch vp.state {
	case StateIdle:
		return vp.stepIdle()
	case StateHolding:
		vp.stepHolding(ctx)
	case StatePresenting:
		vp.stepPresenting()
	}
	return false, nil
}

func (vp *VideoPresenter) stepIdle() (bool, error) {
	f, err := vp.queue.PopTimeout(vp.cfg.PopTimeout)
	switch {
	case errors.Is(err, ErrEndOfStream):
		return true, nil
	case err != nil:
		return true, err
	case f == nil:
		return false, nil
	}

	vp.current = f
	if vp.frameTimer.IsZero() {
		// first frame is due immediately
		vp.frameTimer = vp.now()
		vp.delay = 0
	}
	vp.state = StateHolding
	return false, nil
}

func (vp *VideoPresenter) stepHolding(ctx context.Context) {
	f := vp.current

	var wait time.Duration
	if clock, ok := vp.clockTime(); ok && HasPTS(f.PTS) {
		diff := seconds(f.PTS - clock)
		if diff < -vp.cfg.Slack {
			log.Debug().
				Str("component", "presenter").
				Float64("pts", f.PTS).
				Float64("clock", clock).
				Msg("video behind audio, dropping frame")

			vp.dropped.Add(1)
			vp.releaseCurrent()
			vp.state = StateIdle
			return
		}
		wait = diff
	} else {
		wait = vp.frameTimer.Add(vp.delay).Sub(vp.now())
	}

	if wait <= 0 {
		vp.state = StatePresenting
		return
	}

	if vp.cfg.HoldPoll > 0 && wait > vp.cfg.HoldPoll {
		wait = vp.cfg.HoldPoll
	}
	vp.sleep(ctx, wait)
}

func (vp *VideoPresenter) stepPresenting() {
	f := vp.current

	if err := vp.surface.Present(f); err != nil {
		log.Warn().Err(err).Str("component", "presenter").Msg("presenting frame failed")
	} else {
		vp.presented.Add(1)
	}

	vp.frameTimer = vp.now()
	vp.delay = vp.estimateDelay(f.PTS)

	vp.releaseCurrent()
	vp.state = StateIdle
}

// estimateDelay returns the spacing between pts and the next queued frame.
func (vp *VideoPresenter) estimateDelay(pts float64) time.Duration {
	next, _, ok := vp.queue.Peek()
	if !ok || !HasPTS(pts) || !HasPTS(next) || next <= pts {
		return vp.cfg.NominalDelay
	}
	return seconds(next - pts)
}

func (vp *VideoPresenter) clockTime() (float64, bool) {
	if vp.clock == nil {
		return 0, false
	}
	return vp.clock.Time()
}

func (vp *VideoPresenter) releaseCurrent() {
	if vp.current != nil {
		vp.current.Release()
		vp.current = nil
	}
}

func (vp *VideoPresenter) State() PresenterState {
	return vp.state
}

func (vp *VideoPresenter) Presented() int64 {
	return vp.presented.Load()
}

func (vp *VideoPresenter) Dropped() int64 {
	return vp.dropped.Load()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
