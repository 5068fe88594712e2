package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"storynest/internal/domain/story"
	"strings"
	"sync"
	"time"
)

const mockSampleRate = 8000

// MockTTSEngine produces silent WAV clips whose length follows the text, so
// the whole pipeline can run without a speech backend.
type MockTTSEngine struct {
	mu     sync.Mutex
	config Config
	calls  []string
	// MaxDuration caps the length of each silent clip.
	MaxDuration time.Duration
	// Err, when set, is returned by every Synthesize call.
	Err error
}

func NewMockTTSEngine(c Config) *MockTTSEngine {
	return &MockTTSEngine{
		config:      c,
		MaxDuration: 2 * time.Second,
	}
}

func (m *MockTTSEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts = m.config.merge(opts)
	d := story.EstimateDuration(text, opts.Speed)
	if m.MaxDuration > 0 && d > m.MaxDuration {
		d = m.MaxDuration
	}
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}

	return []Clip{{
		Audio:  silentWAV(d),
		Format: story.AudioWAV,
		Text:   text,
	}}, nil
}

// Calls returns the texts synthesized so far.
func (m *MockTTSEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockTTSEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	return []string{"mock-voice"}, nil
}

// silentWAV encodes d of 16-bit mono silence as a RIFF/WAVE file.
func silentWAV(d time.Duration) []byte {
	samples := int(d.Seconds() * mockSampleRate)
	dataLen := uint32(samples * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(mockSampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(mockSampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

// isWAV reports whether b starts with a RIFF/WAVE header.
func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && strings.EqualFold(string(b[8:12]), "WAVE")
}
