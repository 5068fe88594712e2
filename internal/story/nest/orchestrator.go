package nest

import (
	"context"
	"errors"
	"fmt"
	"storynest/internal/domain/generator"
	"storynest/internal/domain/story"
	"storynest/internal/story/enrich"
	"storynest/internal/story/parser"
	"storynest/internal/story/playback"
	"storynest/internal/story/prompt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("storynest is closed")

// Status is the aggregate state of the current session.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Snapshot is a copy of everything the reader can currently see.
type Snapshot struct {
	Session       string
	Status        Status
	Request       story.GenerationRequest
	Story         *story.Story
	Parsed        parser.Kind
	Illustrations []enrich.IllustrationResult
	Narration     *enrich.NarrationResult
	Playback      playback.State
	LastError     error
	// Message is a short text for the reader, set when generation failed.
	Message string
}

type EventKind int

const (
	EventLoading EventKind = iota
	EventStory
	EventIllustration
	EventNarration
	EventError
	EventPlayback
)

func (k EventKind) String() string {
	switch k {
	case EventLoading:
		return "loading"
	case EventStory:
		return "story"
	case EventIllustration:
		return "illustration"
	case EventNarration:
		return "narration"
	case EventError:
		return "error"
	case EventPlayback:
		return "playback"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is published whenever part of the session becomes visible. Only the
// fields matching Kind are set; playback events carry no session.
type Event struct {
	Kind         EventKind
	Session      string
	Story        *story.Story
	Illustration *enrich.IllustrationResult
	Narration    *enrich.NarrationResult
	Playback     playback.State
	Err          error
	Message      string
}

// Listener receives events one at a time, in publish order, on a goroutine
// that holds no Orchestrator lock. It may call back into the Orchestrator,
// except for Wait and Close.
type Listener func(Event)

type Deps struct {
	Text     generator.TextGenerator
	Enricher *enrich.Enricher
	Player   playback.Player
}

type Option func(*Orchestrator)

func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		o.listeners = append(o.listeners, l)
	}
}

func WithPrompts(b prompt.Builder) Option {
	return func(o *Orchestrator) {
		o.prompts = b
	}
}

func WithParams(p generator.Params) Option {
	return func(o *Orchestrator) {
		o.params = p
	}
}

// WithEnrichment selects which enrichment runs after each story.
func WithEnrichment(images, narration bool) Option {
	return func(o *Orchestrator) {
		o.images = images
		o.narration = narration
	}
}

// Orchestrator runs one generation session at a time. A new Generate
// supersedes the previous session: its audio stops before Generate returns
// and its late results are dropped.
type Orchestrator struct {
	text       generator.TextGenerator
	enricher   *enrich.Enricher
	controller *playback.Controller
	prompts    prompt.Builder
	params     generator.Params
	images     bool
	narration  bool
	listeners  []Listener

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	snap   Snapshot
	source playback.Source
	closed bool

	emit        sync.Mutex
	queue       []Event
	dispatching bool
	drained     *sync.Cond

	wg sync.WaitGroup
}

func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Text == nil {
		return nil, errors.New("a text generator is required")
	}
	if deps.Player == nil {
		return nil, errors.New("an audio player is required")
	}

	o := &Orchestrator{
		text:     deps.Text,
		enricher: deps.Enricher,
		params:   generator.Params{System: prompt.SystemPrompt, Temperature: 0.8},
	}
	o.drained = sync.NewCond(&o.emit)
	for _, opt := range opts {
		opt(o)
	}
	if o.prompts.Strategy == prompt.Structured {
		o.params.JSON = true
	}
	o.controller = playback.NewController(deps.Player, playback.WithObserver(o.onPlayback))
	return o, nil
}

// Generate starts a new session for req. Only request validation errors are
// returned; everything else is reported through Snapshot and events.
func (o *Orchestrator) Generate(ctx context.Context, req story.GenerationRequest) error {
	p, err := o.prompts.Story(req)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}

	// The old story's narration halts before anything else changes.
	o.controller.Reset(nil)

	o.seq++
	seq := o.seq
	if o.cancel != nil {
		o.cancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	session := uuid.NewString()
	o.snap.Session = session
	o.snap.Status = StatusLoading
	o.snap.Request = req
	o.snap.LastError = nil
	o.snap.Message = ""
	o.wg.Add(1)
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session":  session,
		"category": req.Category,
		"length":   req.Length,
		"language": req.Language,
	}).Info("Generating story")
	o.deliver(Event{Kind: EventLoading, Session: session})

	go o.run(sctx, seq, session, req, p)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, seq uint64, session string, req story.GenerationRequest, p string) {
	defer o.wg.Done()

	raw, err := o.text.GenerateText(ctx, p, o.params)
	if err != nil {
		o.fail(seq, session, err)
		return
	}

	res := parser.Analyze(raw, req.Language)
	s := res.Story

	var fut *narrationFuture
	if o.narration && o.enricher != nil {
		fut = newNarrationFuture()
	}

	o.mu.Lock()
	if seq != o.seq || o.closed {
		o.mu.Unlock()
		logrus.WithField("session", session).Debug("Dropping superseded story")
		return
	}
	o.snap.Story = &s
	o.snap.Parsed = res.Kind
	o.snap.Status = StatusReady
	o.snap.Illustrations = nil
	o.snap.Narration = nil
	o.source = o.narrationSource(s, req.Language, fut)
	o.controller.Reset(o.source)
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session":    session,
		"title":      s.Title,
		"paragraphs": len(s.Paragraphs),
		"parsed":     res.Kind,
	}).Info("Story ready")
	o.deliver(Event{Kind: EventStory, Session: session, Story: &s})

	if o.enricher == nil || (!o.images && !o.narration) {
		return
	}
	o.enricher.Enrich(ctx, s, enrich.Options{
		Images:    o.images,
		Narration: o.narration,
		Language:  req.Language,
		OnIllustration: func(r enrich.IllustrationResult) {
			o.publishIllustration(seq, session, r)
		},
		OnNarration: func(r enrich.NarrationResult) {
			fut.complete(r)
			o.publishNarration(seq, session, r)
		},
	})
}

// fail keeps the last good story on screen and makes its narration playable
// again.
func (o *Orchestrator) fail(seq uint64, session string, err error) {
	gerr := &story.GenerationError{Err: err}

	o.mu.Lock()
	if seq != o.seq || o.closed {
		o.mu.Unlock()
		return
	}
	o.snap.Status = StatusError
	o.snap.LastError = gerr
	o.snap.Message = gerr.UserMessage()
	if o.snap.Story != nil {
		o.controller.Reset(o.source)
	}
	o.mu.Unlock()

	logrus.WithError(err).WithField("session", session).Error("Story generation failed")
	o.deliver(Event{Kind: EventError, Session: session, Err: gerr, Message: gerr.UserMessage()})
}

func (o *Orchestrator) publishIllustration(seq uint64, session string, r enrich.IllustrationResult) {
	o.mu.Lock()
	if seq != o.seq || o.closed {
		o.mu.Unlock()
		return
	}
	o.snap.Illustrations = append(o.snap.Illustrations, r)
	o.mu.Unlock()

	o.deliver(Event{Kind: EventIllustration, Session: session, Illustration: &r, Err: r.Err})
}

func (o *Orchestrator) publishNarration(seq uint64, session string, r enrich.NarrationResult) {
	o.mu.Lock()
	if seq != o.seq || o.closed {
		o.mu.Unlock()
		return
	}
	o.snap.Narration = &r
	o.mu.Unlock()

	o.deliver(Event{Kind: EventNarration, Session: session, Narration: &r, Err: r.Err})
}

// narrationSource serves the narration produced by enrichment when there is
// one, and synthesizes it on demand otherwise.
func (o *Orchestrator) narrationSource(s story.Story, lang story.Language, fut *narrationFuture) playback.Source {
	if o.enricher == nil {
		return nil
	}
	return func(ctx context.Context) ([]story.NarrationSegment, error) {
		if fut != nil {
			select {
			case <-fut.done:
				if fut.res.Err == nil {
					return fut.res.Segments, nil
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return o.enricher.Narrate(ctx, s, lang)
	}
}

func (o *Orchestrator) onPlayback(s playback.State) {
	o.deliver(Event{Kind: EventPlayback, Playback: s, Err: s.Err})
}

// deliver queues ev for the listeners. It never blocks on a listener, so it
// is safe to call with any lock held.
func (o *Orchestrator) deliver(ev Event) {
	if len(o.listeners) == 0 {
		return
	}
	o.emit.Lock()
	o.queue = append(o.queue, ev)
	if !o.dispatching {
		o.dispatching = true
		go o.dispatch()
	}
	o.emit.Unlock()
}

// dispatch runs until the queue is empty.
func (o *Orchestrator) dispatch() {
	o.emit.Lock()
	for len(o.queue) > 0 {
		batch := o.queue
		o.queue = nil
		o.emit.Unlock()

		for _, ev := range batch {
			for _, l := range o.listeners {
				l(ev)
			}
		}
		o.emit.Lock()
	}
	o.dispatching = false
	o.drained.Broadcast()
	o.emit.Unlock()
}

// Snapshot returns a copy of the current session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := o.snap
	snap.Illustrations = append([]enrich.IllustrationResult(nil), o.snap.Illustrations...)
	snap.Playback = o.controller.State()
	return snap
}

func (o *Orchestrator) Play()   { o.controller.Play() }
func (o *Orchestrator) Pause()  { o.controller.Pause() }
func (o *Orchestrator) Resume() { o.controller.Resume() }
func (o *Orchestrator) Stop()   { o.controller.Stop() }
func (o *Orchestrator) Skip()   { o.controller.Skip() }

// Wait blocks until the background work of every session has finished and
// its events have reached the listeners.
func (o *Orchestrator) Wait() {
	o.wg.Wait()

	o.emit.Lock()
	for o.dispatching {
		o.drained.Wait()
	}
	o.emit.Unlock()
}

// Close stops audio, cancels the running session and waits for it.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.controller.Reset(nil)
	o.mu.Unlock()

	o.Wait()
}

type narrationFuture struct {
	once sync.Once
	done chan struct{}
	res  enrich.NarrationResult
}

func newNarrationFuture() *narrationFuture {
	return &narrationFuture{done: make(chan struct{})}
}

func (f *narrationFuture) complete(r enrich.NarrationResult) {
	if f == nil {
		return
	}
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}
