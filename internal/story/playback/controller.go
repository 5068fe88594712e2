// Package playback plays narration segments one after another and exposes
// the playback lifecycle as a small state machine.
package playback

import (
	"context"
	"errors"
	"fmt"
	"storynest/internal/domain/story"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoNarration is reported when Play is called before any story installed
// a narration source.
var ErrNoNarration = errors.New("no narration available")

type Status int

const (
	Idle Status = iota
	Loading
	Playing
	Paused
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Error:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is a snapshot of the controller. Segment is meaningful while Playing
// or Paused; Total is zero until narration has been loaded.
type State struct {
	Status  Status
	Segment int
	Total   int
	Err     error
}

// Handle controls one segment that is being played.
type Handle interface {
	Pause()
	Resume()
	Stop()
	// Done yields once when the segment ends, with nil on a natural end.
	Done() <-chan error
}

// Player starts playback of a single segment. Play must return as soon as
// audio output has started.
type Player interface {
	Play(ctx context.Context, seg story.NarrationSegment) (Handle, error)
}

// Source fetches the narration of the current story.
type Source func(ctx context.Context) ([]story.NarrationSegment, error)

// Observer is told about every state transition, in order. Observers may
// call back into the Controller; transitions made from inside an observer
// are delivered after it returns.
type Observer func(State)

type Option func(*Controller)

func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// Controller drives a Player through the segments of one story at a time.
// Every transition that halts playback bumps the epoch, so loader results
// and end-of-segment events from an earlier run are ignored.
type Controller struct {
	player    Player
	observers []Observer

	mu       sync.Mutex
	state    State
	source   Source
	segments []story.NarrationSegment
	handle   Handle
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	pending  []State
	flushing bool
}

func NewController(player Player, opts ...Option) *Controller {
	c := &Controller{player: player}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset halts any audio and installs the narration source of a new story.
// A nil source leaves the controller idle with nothing to play.
func (c *Controller) Reset(src Source) {
	c.mu.Lock()
	c.halt()
	c.source = src
	c.segments = nil
	c.set(State{Status: Idle})
	c.mu.Unlock()
	c.flush()
}

// Play starts narration from the beginning, resumes it when paused, or
// retries after an error. It is a no-op while loading or playing.
func (c *Controller) Play() {
	c.mu.Lock()
	switch c.state.Status {
	case Paused:
		c.resume()
	case Idle, Error:
		c.start()
	}
	c.mu.Unlock()
	c.flush()
}

// Pause holds the current segment at its position.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.pause()
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) pause() {
	if c.state.Status == Playing {
		c.handle.Pause()
		c.set(State{Status: Paused, Segment: c.state.Segment, Total: c.state.Total})
	}
}

// Resume continues a paused segment.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state.Status == Paused {
		c.resume()
	}
	c.mu.Unlock()
	c.flush()
}

// resume continues the paused segment. A segment that was reached while
// paused has no handle yet and is started here. Called with mu held.
func (c *Controller) resume() {
	if c.handle == nil {
		c.playSegment(c.state.Segment)
		return
	}
	c.handle.Resume()
	c.set(State{Status: Playing, Segment: c.state.Segment, Total: c.state.Total})
}

// Stop halts audio output before returning. Loaded segments are kept, so a
// later Play starts over without fetching them again.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Status != Idle {
		c.halt()
		c.set(State{Status: Idle, Total: len(c.segments)})
	}
	c.mu.Unlock()
	c.flush()
}

// Skip jumps to the next segment, or finishes when on the last one.
func (c *Controller) Skip() {
	c.mu.Lock()
	if c.state.Status == Playing || c.state.Status == Paused {
		next := c.state.Segment + 1
		c.stopHandle()
		if next < len(c.segments) {
			c.playSegment(next)
		} else {
			c.halt()
			c.set(State{Status: Idle, Total: len(c.segments)})
		}
	}
	c.mu.Unlock()
	c.flush()
}

// start begins a new run. Called with mu held.
func (c *Controller) start() {
	if c.source == nil {
		c.set(State{Status: Error, Err: &story.PlaybackError{Segment: -1, Err: ErrNoNarration}})
		return
	}

	c.halt()
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if len(c.segments) > 0 {
		c.playSegment(0)
		return
	}

	c.set(State{Status: Loading})
	go c.load(c.ctx, c.epoch, c.source)
}

func (c *Controller) load(ctx context.Context, epoch uint64, src Source) {
	segments, err := src(ctx)
	if err == nil && len(segments) == 0 {
		err = ErrNoNarration
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		logrus.WithField("epoch", epoch).Debug("Dropping stale narration load")
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("Narration could not be loaded")
		c.set(State{Status: Error, Err: &story.PlaybackError{Segment: -1, Err: err}})
	} else {
		c.segments = segments
		c.playSegment(0)
	}
	c.mu.Unlock()
	c.flush()
}

// playSegment starts segment i of the loaded narration. Called with mu held.
func (c *Controller) playSegment(i int) {
	c.epoch++
	epoch := c.epoch

	h, err := c.player.Play(c.ctx, c.segments[i])
	if err != nil {
		logrus.WithError(err).WithField("segment", i).Warn("Segment playback failed")
		c.halt()
		c.set(State{Status: Error, Segment: i, Total: len(c.segments), Err: &story.PlaybackError{Segment: i, Err: err}})
		return
	}

	c.handle = h
	c.set(State{Status: Playing, Segment: i, Total: len(c.segments)})
	go c.watch(epoch, i, h)
}

// watch maps the end of a segment onto advance, finish or error.
func (c *Controller) watch(epoch uint64, i int, h Handle) {
	err := <-h.Done()

	c.mu.Lock()
	if epoch != c.epoch || c.handle != h {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	switch {
	case err != nil:
		logrus.WithError(err).WithField("segment", i).Warn("Segment ended with error")
		c.halt()
		c.set(State{Status: Error, Segment: i, Total: len(c.segments), Err: &story.PlaybackError{Segment: i, Err: err}})
	case i+1 < len(c.segments) && c.state.Status == Paused:
		// Paused just as the segment ended: hold at the next one.
		c.set(State{Status: Paused, Segment: i + 1, Total: len(c.segments)})
	case i+1 < len(c.segments):
		c.playSegment(i + 1)
	default:
		c.halt()
		c.set(State{Status: Idle, Total: len(c.segments)})
	}
	c.mu.Unlock()
	c.flush()
}

// halt stops the current handle and cancels outstanding work. Called with mu held.
func (c *Controller) halt() {
	c.epoch++
	c.stopHandle()
	if c.cancel != nil {
		c.cancel()
		c.ctx, c.cancel = nil, nil
	}
}

func (c *Controller) stopHandle() {
	if c.handle != nil {
		c.handle.Stop()
		c.handle = nil
	}
}

// set records a transition. Called with mu held.
func (c *Controller) set(s State) {
	c.state = s
	if len(c.observers) > 0 {
		c.pending = append(c.pending, s)
	}
}

// flush delivers pending transitions without holding mu. Only one flush
// runs at a time; a flush started while another is running, including one
// from inside an observer, leaves its transitions to the running one.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, s := range pending {
			for _, fn := range c.observers {
				fn(s)
			}
		}
		c.mu.Lock()
	}
	c.flushing = false
	c.mu.Unlock()
}
