package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"storynest/internal/domain/story"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

const DefaultSampleRate = 44100

// BeepPlayer plays segments on the default audio device. The speaker is
// initialised once; clips with another rate are resampled.
type BeepPlayer struct {
	sampleRate beep.SampleRate

	once    sync.Once
	initErr error
}

func NewBeepPlayer(sampleRate int) *BeepPlayer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &BeepPlayer{sampleRate: beep.SampleRate(sampleRate)}
}

func (p *BeepPlayer) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10))
	})
	return p.initErr
}

func (p *BeepPlayer) Play(ctx context.Context, seg story.NarrationSegment) (Handle, error) {
	if err := p.init(); err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}

	streamer, format, err := decode(seg)
	if err != nil {
		return nil, err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.sampleRate {
		s = beep.Resample(4, format.SampleRate, p.sampleRate, streamer)
	}

	h := &beepHandle{
		ctrl:     &beep.Ctrl{Streamer: s},
		closer:   streamer,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(func() {
		h.finish(nil)
	})))

	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.finished:
		}
	}()

	logrus.WithFields(logrus.Fields{
		"segment": seg.Index,
		"format":  seg.Format,
		"rate":    format.SampleRate,
	}).Debug("Playing segment")
	return h, nil
}

func decode(seg story.NarrationSegment) (beep.StreamSeekCloser, beep.Format, error) {
	var rc io.ReadCloser
	switch {
	case len(seg.Audio) > 0:
		rc = io.NopCloser(bytes.NewReader(seg.Audio))
	case seg.Path != "":
		f, err := os.Open(seg.Path)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to open audio %s: %w", seg.Path, err)
		}
		rc = f
	default:
		return nil, beep.Format{}, errors.New("segment has no audio")
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch seg.Format {
	case story.AudioWAV:
		streamer, format, err = wav.Decode(rc)
	default:
		streamer, format, err = mp3.Decode(rc)
	}
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s segment %d: %w", seg.Format, seg.Index, err)
	}
	return streamer, format, nil
}

type beepHandle struct {
	ctrl   *beep.Ctrl
	closer io.Closer

	once     sync.Once
	done     chan error
	finished chan struct{}
}

func (h *beepHandle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *beepHandle) Resume() {
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

// Stop detaches the stream from the speaker; the mixer drops it on its next
// buffer.
func (h *beepHandle) Stop() {
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()
	h.finish(nil)
}

func (h *beepHandle) Done() <-chan error {
	return h.done
}

// finish may run inside the speaker callback, so it must not take the
// speaker lock.
func (h *beepHandle) finish(err error) {
	h.once.Do(func() {
		h.done <- err
		close(h.finished)
		go h.closer.Close()
	})
}
