// Package enrich adds illustrations and narration to an already valid story.
// Every request is independent: a failed image or audio clip only leaves its
// own slot empty.
package enrich

import (
	"context"
	"errors"
	"storynest/internal/domain/generator"
	"storynest/internal/domain/story"
	"storynest/internal/story/prompt"
	"storynest/internal/story/tts"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoImageGenerator = errors.New("no image generator configured")
	ErrNoSpeechEngine   = errors.New("no speech engine configured")
	ErrNoAudio          = errors.New("speech engine returned no audio")
)

// NarrationLayout decides how narration is split into segments.
type NarrationLayout int

const (
	// WholeStory narrates the story with a single synthesis request.
	WholeStory NarrationLayout = iota
	// PerParagraph issues one request per paragraph.
	PerParagraph
)

func (l NarrationLayout) String() string {
	if l == PerParagraph {
		return "paragraph"
	}
	return "story"
}

// ParseLayout maps a config value to a NarrationLayout.
func ParseLayout(s string) (NarrationLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "story", "whole", "single":
		return WholeStory, nil
	case "paragraph", "paragraphs", "per-paragraph":
		return PerParagraph, nil
	}
	return WholeStory, &story.InvalidParameterError{Field: "layout", Value: s, Reason: "expected story or paragraph"}
}

// Config wires the collaborators of an Enricher.
type Config struct {
	Images  generator.ImageGenerator
	Speech  tts.Synthesizer
	Prompts prompt.Builder
	// MaxIllustrations caps paragraph illustrations, counted from the start.
	MaxIllustrations int
	// Cover adds one whole-story illustration.
	Cover       bool
	ImageSize   string
	Layout      NarrationLayout
	Voice       tts.Options
	Concurrency int
}

type Enricher struct {
	cfg Config
}

func New(cfg Config) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxIllustrations < 0 {
		cfg.MaxIllustrations = 0
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "256x256"
	}
	return &Enricher{cfg: cfg}
}

// Options select what Enrich produces.
type Options struct {
	Images    bool
	Narration bool
	Language  story.Language
	// OnIllustration and OnNarration are called as each slot completes, one
	// call at a time.
	OnIllustration func(IllustrationResult)
	OnNarration    func(NarrationResult)
}

// IllustrationResult is the outcome of one illustration slot.
type IllustrationResult struct {
	ParagraphIndex *int
	Illustration   *story.Illustration
	Err            error
}

// NarrationResult is the outcome of the narration request.
type NarrationResult struct {
	Segments []story.NarrationSegment
	Err      error
}

// Result collects all slots. Illustrations are ordered cover first, then by
// paragraph. Narration is nil when it was not requested.
type Result struct {
	Illustrations []IllustrationResult
	Narration     *NarrationResult
}

// Illustration returns the illustration for a paragraph, if one succeeded.
func (r Result) Illustration(paragraph int) *story.Illustration {
	for _, il := range r.Illustrations {
		if il.ParagraphIndex != nil && *il.ParagraphIndex == paragraph && il.Err == nil {
			return il.Illustration
		}
	}
	return nil
}

// Slots lists the paragraph indexes that get an illustration; nil stands for
// the cover.
func (e *Enricher) Slots(s story.Story) []*int {
	var slots []*int
	if e.cfg.Cover {
		slots = append(slots, nil)
	}
	n := min(e.cfg.MaxIllustrations, len(s.Paragraphs))
	for i := 0; i < n; i++ {
		slots = append(slots, story.IntPtr(i))
	}
	return slots
}

// Enrich runs all requested slots concurrently and waits for them. It never
// fails as a whole.
func (e *Enricher) Enrich(ctx context.Context, s story.Story, opts Options) Result {
	var (
		res  Result
		emit sync.Mutex
		g    errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)

	if opts.Narration {
		g.Go(func() error {
			segments, err := e.Narrate(ctx, s, opts.Language)
			n := NarrationResult{Segments: segments, Err: err}

			emit.Lock()
			defer emit.Unlock()
			res.Narration = &n
			if opts.OnNarration != nil {
				opts.OnNarration(n)
			}
			return nil
		})
	}

	if opts.Images {
		slots := e.Slots(s)
		res.Illustrations = make([]IllustrationResult, len(slots))
		for i, idx := range slots {
			i, idx := i, idx
			g.Go(func() error {
				r := e.illustrate(ctx, s, idx)

				emit.Lock()
				defer emit.Unlock()
				res.Illustrations[i] = r
				if opts.OnIllustration != nil {
					opts.OnIllustration(r)
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	return res
}

func (e *Enricher) illustrate(ctx context.Context, s story.Story, idx *int) IllustrationResult {
	fail := func(err error) IllustrationResult {
		logrus.WithError(err).WithField("paragraph", paragraphField(idx)).Warn("Illustration failed")
		return IllustrationResult{
			ParagraphIndex: idx,
			Err:            &story.EnrichError{Kind: story.KindIllustration, ParagraphIndex: idx, Err: err},
		}
	}

	if e.cfg.Images == nil {
		return fail(ErrNoImageGenerator)
	}
	p, err := e.cfg.Prompts.Illustration(s, idx)
	if err != nil {
		return fail(err)
	}
	img, err := e.cfg.Images.GenerateImage(ctx, p, e.cfg.ImageSize)
	if err != nil {
		return fail(err)
	}
	if img == nil {
		return fail(errors.New("image generator returned nothing"))
	}

	img.ParagraphIndex = idx
	if img.Prompt == "" {
		img.Prompt = p
	}
	return IllustrationResult{ParagraphIndex: idx, Illustration: img}
}

// Narrate synthesizes narration for s using the configured layout. Segments
// are indexed in playback order.
func (e *Enricher) Narrate(ctx context.Context, s story.Story, lang story.Language) ([]story.NarrationSegment, error) {
	if e.cfg.Speech == nil {
		return nil, &story.EnrichError{Kind: story.KindNarration, Err: ErrNoSpeechEngine}
	}

	opts := e.cfg.Voice
	if !lang.IsZero() {
		opts.Language = lang
	}

	var (
		clips [][]tts.Clip
		err   error
	)
	switch e.cfg.Layout {
	case PerParagraph:
		clips, err = e.synthesizeParagraphs(ctx, s, opts)
	default:
		var c []tts.Clip
		c, err = e.cfg.Speech.Synthesize(ctx, e.cfg.Prompts.Speech(s), opts)
		clips = [][]tts.Clip{c}
	}
	if err != nil {
		logrus.WithError(err).WithField("layout", e.cfg.Layout).Warn("Narration failed")
		var ee *story.EnrichError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, &story.EnrichError{Kind: story.KindNarration, Err: err}
	}

	var segments []story.NarrationSegment
	for _, group := range clips {
		for _, c := range group {
			segments = append(segments, story.NarrationSegment{
				Index:        len(segments),
				Audio:        c.Audio,
				Path:         c.Path,
				Format:       c.Format,
				Text:         c.Text,
				DurationHint: story.EstimateDuration(c.Text, opts.Speed),
			})
		}
	}
	if len(segments) == 0 {
		return nil, &story.EnrichError{Kind: story.KindNarration, Err: ErrNoAudio}
	}
	return segments, nil
}

// synthesizeParagraphs narrates each paragraph separately; the title is read
// with the first one. Any failure fails the narration as a whole.
func (e *Enricher) synthesizeParagraphs(ctx context.Context, s story.Story, opts tts.Options) ([][]tts.Clip, error) {
	clips := make([][]tts.Clip, len(s.Paragraphs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, p := range s.Paragraphs {
		i := i
		text := p
		if i == 0 && s.Title != "" {
			text = s.Title + "\n\n" + p
		}
		g.Go(func() error {
			c, err := e.cfg.Speech.Synthesize(gctx, text, opts)
			if err != nil {
				return &story.EnrichError{Kind: story.KindNarration, ParagraphIndex: story.IntPtr(i), Err: err}
			}
			clips[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func paragraphField(idx *int) any {
	if idx == nil {
		return "cover"
	}
	return *idx
}
