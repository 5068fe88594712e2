package playback

import (
	"context"
	"errors"
	"storynest/internal/domain/story"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeHandle struct {
	mu      sync.Mutex
	seg     story.NarrationSegment
	paused  bool
	stopped bool
	ended   bool
	done    chan error
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
}

func (h *fakeHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = false
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.stopped = true
		h.ended = true
		h.done <- nil
	}
}

func (h *fakeHandle) Done() <-chan error {
	return h.done
}

// end simulates the segment finishing on its own.
func (h *fakeHandle) end(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.ended = true
		h.done <- err
	}
}

func (h *fakeHandle) state() (paused, stopped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused, h.stopped
}

type fakePlayer struct {
	mu      sync.Mutex
	handles []*fakeHandle
	overlap bool
	err     error
}

func (p *fakePlayer) Play(ctx context.Context, seg story.NarrationSegment) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	for _, h := range p.handles {
		h.mu.Lock()
		if !h.ended {
			p.overlap = true
		}
		h.mu.Unlock()
	}
	h := &fakeHandle{seg: seg, done: make(chan error, 1)}
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlayer) handle(i int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[i]
}

func (p *fakePlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, h := range p.handles {
		out = append(out, h.seg.Text)
	}
	return out
}

type recorder struct {
	ch chan State
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan State, 64)}
}

func (r *recorder) observe(s State) {
	r.ch <- s
}

func (r *recorder) waitFor(t *testing.T, status Status, segment int) State {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s.Status == status && (status != Playing && status != Paused || s.Segment == segment) {
				return s
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s(%d)", status, segment)
			return State{}
		}
	}
}

func segments(texts ...string) []story.NarrationSegment {
	out := make([]story.NarrationSegment, len(texts))
	for i, text := range texts {
		out[i] = story.NarrationSegment{Index: i, Text: text, Format: story.AudioMP3, Audio: []byte(text)}
	}
	return out
}

func staticSource(calls *atomic.Int32, segs []story.NarrationSegment) Source {
	return func(ctx context.Context) ([]story.NarrationSegment, error) {
		calls.Add(1)
		return segs, nil
	}
}

func TestPauseWhileIdleIsNoop(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(player)
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("a")))

	c.Pause()
	c.Resume()

	if got := c.State(); got.Status != Idle {
		t.Errorf("Expected idle, got %s", got.Status)
	}
	if calls.Load() != 0 || len(player.played()) != 0 {
		t.Error("Pause or Resume while idle should not load or play")
	}
}

func TestSegmentsPlayInOrderThenIdle(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two", "three")))

	c.Play()
	rec.waitFor(t, Playing, 0)
	player.handle(0).end(nil)
	rec.waitFor(t, Playing, 1)
	player.handle(1).end(nil)
	s := rec.waitFor(t, Playing, 2)
	if s.Total != 3 {
		t.Errorf("Expected total 3, got %d", s.Total)
	}
	player.handle(2).end(nil)
	rec.waitFor(t, Idle, 0)

	if diff := cmp.Diff([]string{"one", "two", "three"}, player.played()); diff != "" {
		t.Errorf("play order mismatch (-want +got):\n%s", diff)
	}
	if player.overlap {
		t.Error("Segments overlapped")
	}
}

func TestReplayUsesLoadedSegments(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("only")))

	c.Play()
	rec.waitFor(t, Playing, 0)
	player.handle(0).end(nil)
	rec.waitFor(t, Idle, 0)

	c.Play()
	rec.waitFor(t, Playing, 0)

	if n := calls.Load(); n != 1 {
		t.Errorf("Expected narration to be loaded once, got %d", n)
	}
	if n := len(player.played()); n != 2 {
		t.Errorf("Expected 2 plays, got %d", n)
	}
}

func TestStopHaltsAudio(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two")))

	c.Play()
	rec.waitFor(t, Playing, 0)
	c.Stop()

	if _, stopped := player.handle(0).state(); !stopped {
		t.Error("Stop should halt the current handle before returning")
	}
	if got := c.State(); got.Status != Idle {
		t.Errorf("Expected idle, got %s", got.Status)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(player.played()); n != 1 {
		t.Errorf("Stopped segment must not advance, got %d plays", n)
	}
}

func TestPauseKeepsSegment(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two")))

	c.Play()
	rec.waitFor(t, Playing, 0)
	player.handle(0).end(nil)
	rec.waitFor(t, Playing, 1)

	c.Pause()
	if got := c.State(); got.Status != Paused || got.Segment != 1 {
		t.Errorf("Expected paused(1), got %s(%d)", got.Status, got.Segment)
	}
	if paused, _ := player.handle(1).state(); !paused {
		t.Error("Handle should be paused")
	}

	// Play while paused resumes the same handle.
	c.Play()
	if got := c.State(); got.Status != Playing || got.Segment != 1 {
		t.Errorf("Expected playing(1), got %s(%d)", got.Status, got.Segment)
	}
	if paused, _ := player.handle(1).state(); paused {
		t.Error("Handle should be resumed")
	}
	if n := len(player.played()); n != 2 {
		t.Errorf("Resume must not restart playback, got %d plays", n)
	}
}

func TestLoadErrorThenRetry(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))

	var calls atomic.Int32
	c.Reset(func(ctx context.Context) ([]story.NarrationSegment, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("speech quota")
		}
		return segments("one"), nil
	})

	c.Play()
	s := rec.waitFor(t, Error, 0)
	var pe *story.PlaybackError
	if !errors.As(s.Err, &pe) || pe.Segment != -1 {
		t.Errorf("Expected narration unavailable error, got %v", s.Err)
	}

	c.Play()
	rec.waitFor(t, Playing, 0)
	if calls.Load() != 2 {
		t.Errorf("Expected a retry, got %d loads", calls.Load())
	}
}

func TestSegmentFailure(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two")))

	c.Play()
	rec.waitFor(t, Playing, 0)
	player.handle(0).end(nil)
	rec.waitFor(t, Playing, 1)
	player.handle(1).end(errors.New("device lost"))

	s := rec.waitFor(t, Error, 0)
	var pe *story.PlaybackError
	if !errors.As(s.Err, &pe) || pe.Segment != 1 {
		t.Errorf("Expected playback error for segment 1, got %v", s.Err)
	}
}

func TestPlayerStartFailure(t *testing.T) {
	player := &fakePlayer{err: errors.New("no audio device")}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one")))

	c.Play()
	s := rec.waitFor(t, Error, 0)
	var pe *story.PlaybackError
	if !errors.As(s.Err, &pe) || pe.Segment != 0 {
		t.Errorf("Expected playback error for segment 0, got %v", s.Err)
	}
}

func TestPlayWithoutSource(t *testing.T) {
	c := NewController(&fakePlayer{})
	c.Play()

	got := c.State()
	if got.Status != Error || !errors.Is(got.Err, ErrNoNarration) {
		t.Errorf("Expected ErrNoNarration, got %s %v", got.Status, got.Err)
	}

	c.Stop()
	if got := c.State(); got.Status != Idle || got.Err != nil {
		t.Errorf("Stop should clear the error, got %+v", got)
	}
}

func TestResetDropsStaleLoad(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))

	release := make(chan struct{})
	c.Reset(func(ctx context.Context) ([]story.NarrationSegment, error) {
		<-release
		return segments("old"), nil
	})
	c.Play()
	rec.waitFor(t, Loading, 0)

	c.Reset(nil)
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := c.State(); got.Status != Idle {
		t.Errorf("Expected idle, got %s", got.Status)
	}
	if n := len(player.played()); n != 0 {
		t.Errorf("Stale narration must not play, got %v", player.played())
	}
}

func TestResetStopsPlayingStory(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("old-1", "old-2", "old-3")))

	c.Play()
	rec.waitFor(t, Playing, 0)

	c.Reset(staticSource(&calls, segments("new-1")))
	if _, stopped := player.handle(0).state(); !stopped {
		t.Error("Reset should halt the old story's audio")
	}

	c.Play()
	rec.waitFor(t, Playing, 0)
	if diff := cmp.Diff([]string{"old-1", "new-1"}, player.played()); diff != "" {
		t.Errorf("play order mismatch (-want +got):\n%s", diff)
	}
	if player.overlap {
		t.Error("Two stories' audio overlapped")
	}
}

func TestSkip(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two")))

	c.Play()
	rec.waitFor(t, Playing, 0)

	c.Skip()
	if got := c.State(); got.Status != Playing || got.Segment != 1 {
		t.Errorf("Expected playing(1), got %s(%d)", got.Status, got.Segment)
	}
	c.Skip()
	if got := c.State(); got.Status != Idle {
		t.Errorf("Expected idle after last segment, got %s", got.Status)
	}
}

func TestObserverMayCallBack(t *testing.T) {
	var c *Controller
	var mu sync.Mutex
	var seen []Status
	c = NewController(&fakePlayer{}, WithObserver(func(s State) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
		if s.Status == Error {
			c.Stop()
		}
	}))

	done := make(chan struct{})
	go func() {
		c.Play()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Play did not return while an observer called Stop")
	}

	if got := c.State(); got.Status != Idle {
		t.Errorf("Expected idle after the observer stopped, got %s", got.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]Status{Error, Idle}, seen); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestPauseAtSegmentEndHoldsNextSegment(t *testing.T) {
	player := &fakePlayer{}
	rec := newRecorder()
	c := NewController(player, WithObserver(rec.observe))
	var calls atomic.Int32
	c.Reset(staticSource(&calls, segments("one", "two")))

	c.Play()
	rec.waitFor(t, Playing, 0)

	// The segment ends on its own while the pause is being applied.
	c.mu.Lock()
	player.handle(0).end(nil)
	c.pause()
	c.mu.Unlock()
	c.flush()

	rec.waitFor(t, Paused, 1)
	if got := c.State(); got.Status != Paused || got.Segment != 1 {
		t.Errorf("Expected paused(1), got %s(%d)", got.Status, got.Segment)
	}
	if n := len(player.played()); n != 1 {
		t.Errorf("Next segment must wait for resume, got %d plays", n)
	}

	c.Resume()
	if got := c.State(); got.Status != Playing || got.Segment != 1 {
		t.Errorf("Expected playing(1), got %s(%d)", got.Status, got.Segment)
	}
	if diff := cmp.Diff([]string{"one", "two"}, player.played()); diff != "" {
		t.Errorf("play order mismatch (-want +got):\n%s", diff)
	}
}
