package nest

import (
	"context"
	"errors"
	"storynest/internal/domain/generator"
	"storynest/internal/domain/story"
	"storynest/internal/story/enrich"
	"storynest/internal/story/playback"
	"storynest/internal/story/tts"
	"strings"
	"sync"
	"testing"
	"time"
)

type reply struct {
	raw  string
	err  error
	gate chan struct{}
}

// scriptedText answers by the topic found in the prompt.
type scriptedText struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   int
}

func (s *scriptedText) GenerateText(ctx context.Context, p string, params generator.Params) (string, error) {
	s.mu.Lock()
	s.calls++
	var r reply
	for topic, candidate := range s.replies {
		if strings.Contains(p, "Topic: "+topic) {
			r = candidate
		}
	}
	s.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}
	return r.raw, r.err
}

type testHandle struct {
	mu      sync.Mutex
	stopped bool
	ended   bool
	done    chan error
}

func (h *testHandle) Pause()  {}
func (h *testHandle) Resume() {}

func (h *testHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.stopped, h.ended = true, true
		h.done <- nil
	}
}

func (h *testHandle) Done() <-chan error { return h.done }

// end finishes the segment on its own.
func (h *testHandle) end() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.ended = true
		h.done <- nil
	}
}

func (h *testHandle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type testPlayer struct {
	mu      sync.Mutex
	handles []*testHandle
	texts   []string
}

func (p *testPlayer) Play(ctx context.Context, seg story.NarrationSegment) (playback.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &testHandle{done: make(chan error, 1)}
	p.handles = append(p.handles, h)
	p.texts = append(p.texts, seg.Text)
	return h, nil
}

func (p *testPlayer) plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *testPlayer) handle(i int) *testHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[i]
}

type fakeImages struct{}

func (fakeImages) GenerateImage(ctx context.Context, p, size string) (*story.Illustration, error) {
	return &story.Illustration{URL: "https://img.example/1.png"}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 256)}
}

func (l *eventLog) listen(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

func (l *eventLog) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("Timed out waiting for event")
			return Event{}
		}
	}
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, ev := range l.events {
		if ev.Kind != EventPlayback {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (l *eventLog) titles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Kind == EventStory {
			out = append(out, ev.Story.Title)
		}
	}
	return out
}

func request(t *testing.T, category string) story.GenerationRequest {
	t.Helper()
	req, err := story.NewRequest(category, "short", "English", "")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func newTestOrchestrator(t *testing.T, text generator.TextGenerator, player playback.Player, events *eventLog, images, narration bool) *Orchestrator {
	t.Helper()
	e := enrich.New(enrich.Config{
		Images:           fakeImages{},
		Speech:           tts.NewMockTTSEngine(tts.Config{Speed: 1}),
		MaxIllustrations: 3,
		Layout:           enrich.PerParagraph,
	})
	o, err := New(Deps{Text: text, Enricher: e, Player: player},
		WithListener(events.listen),
		WithEnrichment(images, narration))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)
	return o
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	text := &scriptedText{}
	o := newTestOrchestrator(t, text, &testPlayer{}, newEventLog(), false, false)

	err := o.Generate(context.Background(), story.GenerationRequest{Length: story.LengthShort, Language: story.English})
	var ipe *story.InvalidParameterError
	if !errors.As(err, &ipe) || ipe.Field != "category" {
		t.Fatalf("Expected InvalidParameterError for category, got %v", err)
	}
	o.Wait()
	if text.calls != 0 {
		t.Error("No generation call should be made for an invalid request")
	}
	if got := o.Snapshot().Status; got != StatusEmpty {
		t.Errorf("Expected empty status, got %s", got)
	}
}

func TestStoryIsPublishedBeforeEnrichment(t *testing.T) {
	text := &scriptedText{replies: map[string]reply{
		"turtles": {raw: "The Brave Turtle\n\nTito lived by the sea.\n\nA storm came.\n\nAll was well."},
	}}
	events := newEventLog()
	o := newTestOrchestrator(t, text, &testPlayer{}, events, true, true)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.Status != StatusReady || snap.Story == nil || snap.Story.Title != "The Brave Turtle" {
		t.Fatalf("Unexpected snapshot %+v", snap)
	}
	if snap.Session == "" {
		t.Error("Expected a session id")
	}
	if len(snap.Illustrations) != 3 {
		t.Errorf("Expected 3 illustrations, got %d", len(snap.Illustrations))
	}
	if snap.Narration == nil || snap.Narration.Err != nil || len(snap.Narration.Segments) != 3 {
		t.Errorf("Expected 3 narration segments, got %+v", snap.Narration)
	}

	kinds := events.kinds()
	if len(kinds) < 2 || kinds[0] != EventLoading || kinds[1] != EventStory {
		t.Errorf("Expected loading then story first, got %v", kinds)
	}
}

func TestNewGenerateStopsPlayingNarration(t *testing.T) {
	gate := make(chan struct{})
	text := &scriptedText{replies: map[string]reply{
		"turtles": {raw: "The Brave Turtle\n\nOne.\n\nTwo.\n\nThree."},
		"dragons": {raw: "The Kind Dragon\n\nHello.", gate: gate},
	}}
	player := &testPlayer{}
	events := newEventLog()
	o := newTestOrchestrator(t, text, player, events, false, true)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	o.Play()
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventPlayback && ev.Playback.Status == playback.Playing && ev.Playback.Segment == 0
	})
	player.handle(0).end()
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventPlayback && ev.Playback.Status == playback.Playing && ev.Playback.Segment == 1
	})

	if err := o.Generate(context.Background(), request(t, "dragons")); err != nil {
		t.Fatal(err)
	}

	// Synchronously idle with the old audio halted.
	snap := o.Snapshot()
	if snap.Playback.Status != playback.Idle {
		t.Errorf("Expected idle playback, got %s", snap.Playback.Status)
	}
	if !player.handle(1).wasStopped() {
		t.Error("Old narration should be stopped before Generate returns")
	}
	if snap.Status != StatusLoading {
		t.Errorf("Expected loading, got %s", snap.Status)
	}

	close(gate)
	o.Wait()
	if got := o.Snapshot().Story.Title; got != "The Kind Dragon" {
		t.Errorf("Expected the new story, got %q", got)
	}
	if n := player.plays(); n != 2 {
		t.Errorf("The old story must not play on after Generate, got %d plays", n)
	}
}

func TestListenerMayStartPlayback(t *testing.T) {
	text := &scriptedText{replies: map[string]reply{
		"turtles": {raw: "The Brave Turtle\n\nOne.\n\nTwo."},
	}}
	events := newEventLog()
	var o *Orchestrator
	listen := func(ev Event) {
		if ev.Kind == EventStory {
			_ = o.Snapshot()
			o.Play()
		}
		events.listen(ev)
	}

	e := enrich.New(enrich.Config{
		Speech: tts.NewMockTTSEngine(tts.Config{Speed: 1}),
		Layout: enrich.PerParagraph,
	})
	o, err := New(Deps{Text: text, Enricher: e, Player: &testPlayer{}},
		WithListener(listen),
		WithEnrichment(false, true))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventPlayback && ev.Playback.Status == playback.Playing
	})
}

func TestSupersededStoryIsNeverPublished(t *testing.T) {
	gate := make(chan struct{})
	text := &scriptedText{replies: map[string]reply{
		"turtles": {raw: "The Slow Story\n\nToo late.", gate: gate},
		"dragons": {raw: "The Fast Story\n\nRight on time."},
	}}
	events := newEventLog()
	o := newTestOrchestrator(t, text, &testPlayer{}, events, false, false)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	if err := o.Generate(context.Background(), request(t, "dragons")); err != nil {
		t.Fatal(err)
	}
	events.waitFor(t, func(ev Event) bool { return ev.Kind == EventStory })

	close(gate)
	o.Wait()

	if got := events.titles(); len(got) != 1 || got[0] != "The Fast Story" {
		t.Errorf("Expected only the latest story, got %v", got)
	}
	if got := o.Snapshot().Story.Title; got != "The Fast Story" {
		t.Errorf("Expected the latest story, got %q", got)
	}
}

func TestGenerationErrorRetainsStory(t *testing.T) {
	text := &scriptedText{replies: map[string]reply{
		"turtles": {raw: "The Brave Turtle\n\nOne."},
		"dragons": {err: &generator.StatusError{Code: 429, Body: "slow down"}},
	}}
	events := newEventLog()
	o := newTestOrchestrator(t, text, &testPlayer{}, events, false, true)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	o.Wait()
	if err := o.Generate(context.Background(), request(t, "dragons")); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.Status != StatusError {
		t.Errorf("Expected error status, got %s", snap.Status)
	}
	if snap.Story == nil || snap.Story.Title != "The Brave Turtle" {
		t.Errorf("Expected the previous story to be retained, got %+v", snap.Story)
	}
	var gerr *story.GenerationError
	if !errors.As(snap.LastError, &gerr) {
		t.Errorf("Expected GenerationError, got %v", snap.LastError)
	}
	if !strings.Contains(snap.Message, "Rate limit") {
		t.Errorf("Expected rate limit message, got %q", snap.Message)
	}

	// The retained story can still be narrated.
	o.Play()
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventPlayback && ev.Playback.Status == playback.Playing
	})
}

func TestFirstGenerationErrorLeavesNoStory(t *testing.T) {
	text := &scriptedText{replies: map[string]reply{
		"turtles": {err: &generator.StatusError{Code: 401}},
	}}
	events := newEventLog()
	o := newTestOrchestrator(t, text, &testPlayer{}, events, false, false)

	if err := o.Generate(context.Background(), request(t, "turtles")); err != nil {
		t.Fatal(err)
	}
	ev := events.waitFor(t, func(ev Event) bool { return ev.Kind == EventError })
	if ev.Message != "Invalid API key" {
		t.Errorf("Expected invalid key message, got %q", ev.Message)
	}
	o.Wait()

	if snap := o.Snapshot(); snap.Story != nil {
		t.Errorf("Expected no story, got %+v", snap.Story)
	}
}

func TestBlankOutputYieldsPlaceholderStory(t *testing.T) {
	text := &scriptedText{replies: map[string]reply{"turtles": {raw: "   "}}}
	o := newTestOrchestrator(t, text, &testPlayer{}, newEventLog(), false, false)

	req, err := story.NewRequest("turtles", "medium", "German", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	s := o.Snapshot().Story
	if s == nil || !s.Valid() {
		t.Fatalf("Expected a valid placeholder story, got %+v", s)
	}
	if s.Paragraphs[0] != "Es war einmal..." {
		t.Errorf("Expected German placeholder, got %q", s.Paragraphs[0])
	}
}

func TestGenerateAfterClose(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedText{}, &testPlayer{}, newEventLog(), false, false)
	o.Close()

	if err := o.Generate(context.Background(), request(t, "turtles")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
