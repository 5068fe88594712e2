package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"storynest/internal/domain/story"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/sirupsen/logrus"
)

const googleEngineDir = "google_classic"

// Google voices are selected by region-qualified language codes.
var googleLanguageCodes = map[string]string{
	"en": "en-US",
	"id": "id-ID",
	"de": "de-DE",
}

// googleClient is the part of the Cloud Text-to-Speech client the engine uses.
type googleClient interface {
	synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	listVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error)
	Close() error
}

type cloudClient struct {
	c *texttospeech.Client
}

func (c cloudClient) synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.c.SynthesizeSpeech(ctx, req)
}

func (c cloudClient) listVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error) {
	return c.c.ListVoices(ctx, req)
}

func (c cloudClient) Close() error { return c.c.Close() }

type GoogleClassicTTSEngine struct {
	client googleClient
	config Config
	// mu guards the cache directory, never a network call.
	mu           sync.Mutex
	cacheRootDir string
}

func newGoogleClassicTTSEngine(config Config) (*GoogleClassicTTSEngine, error) {
	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}

	cacheDir := config.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "storynest", "tts")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	return &GoogleClassicTTSEngine{
		client:       cloudClient{client},
		config:       config,
		cacheRootDir: cacheDir,
	}, nil
}

// cacheDirectory returns the directory holding this engine's audio.
func (g *GoogleClassicTTSEngine) cacheDirectory() string {
	return filepath.Join(g.cacheRootDir, googleEngineDir)
}

// voiceParams picks the configured voice when it matches the language,
// otherwise lets Google choose a default voice for the language.
func voiceParams(opts Options) *texttospeechpb.VoiceSelectionParams {
	code := googleLanguageCodes[opts.Language.Code()]
	if code == "" {
		code = opts.Language.Tag().String()
	}
	params := &texttospeechpb.VoiceSelectionParams{LanguageCode: code}
	if opts.Voice != "" && strings.HasPrefix(strings.ToLower(opts.Voice), strings.ToLower(opts.Language.Code())+"-") {
		params.Name = opts.Voice
		if parts := strings.SplitN(opts.Voice, "-", 3); len(parts) >= 2 {
			params.LanguageCode = parts[0] + "-" + parts[1]
		}
	}
	return params
}

func (g *GoogleClassicTTSEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	opts = g.config.merge(opts)
	voice := voiceParams(opts)

	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}

	// Chirp voices don't support speakingRate/pitch
	if !strings.Contains(strings.ToLower(voice.Name), "chirp") {
		audioCfg.SpeakingRate = opts.Speed
		audioCfg.VolumeGainDb = volumeToGainDb(opts.Volume)
	}

	cacheDir := g.cacheDirectory()
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}

	contentHash := md5Sum(text + voice.LanguageCode + voice.Name + fmt.Sprintf("%.2f/%.2f", opts.Speed, opts.Volume))[:12]
	chunks := splitIntoChunks(text, 4800) // a little under 5000 to be safe

	log := logrus.WithFields(logrus.Fields{
		"hash":     contentHash,
		"chunks":   len(chunks),
		"language": voice.LanguageCode,
	})

	clips := make([]Clip, 0, len(chunks))
	for i, chunk := range chunks {
		chunkPath := filepath.Join(cacheDir, fmt.Sprintf("%s_%d.mp3", contentHash, i))
		clips = append(clips, Clip{Path: chunkPath, Format: story.AudioMP3, Text: chunk})

		if g.cached(chunkPath) {
			continue
		}

		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice:       voice,
			AudioConfig: audioCfg,
		}
		resp, err := g.client.synthesize(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}

		if err := g.store(chunkPath, resp.AudioContent); err != nil {
			return nil, fmt.Errorf("failed to write MP3 chunk %d to %s: %w", i, chunkPath, err)
		}
		log.WithField("chunk", i+1).Debug("Cached audio chunk")
	}

	return clips, nil
}

func (g *GoogleClassicTTSEngine) cached(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := os.Stat(path)
	return err == nil
}

// store writes audio through a temporary file so readers never see a
// partial chunk.
func (g *GoogleClassicTTSEngine) store(path string, audio []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, audio, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// volumeToGainDb maps a 0..2 volume multiplier onto Google's -96..16 dB range.
func volumeToGainDb(volume float64) float64 {
	switch {
	case volume <= 0:
		return -96
	case volume == 1:
		return 0
	case volume < 1:
		return (volume - 1) * 20
	default:
		gain := (volume - 1) * 16
		if gain > 16 {
			gain = 16
		}
		return gain
	}
}

func (g *GoogleClassicTTSEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	resp, err := g.client.listVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, err
	}
	voices := []string{}
	for _, v := range resp.Voices {
		for _, code := range v.LanguageCodes {
			if _, ok := supportedGoogleCode(code); ok {
				voices = append(voices, v.Name)
				break
			}
		}
	}
	return voices, nil
}

func supportedGoogleCode(code string) (string, bool) {
	for base, full := range googleLanguageCodes {
		if strings.EqualFold(code, full) {
			return base, true
		}
	}
	return "", false
}

// GetCacheStats walks the cache root and totals the narration MP3s in it.
func (g *GoogleClassicTTSEngine) GetCacheStats() (map[string]interface{}, error) {
	var files, bytes int64
	err := filepath.WalkDir(g.cacheRootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp3") {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			bytes += info.Size()
		}
		return nil
	})

	return map[string]interface{}{
		"cache_directory": g.cacheRootDir,
		"cached_files":    files,
		"total_size_mb":   float64(bytes) / (1 << 20),
	}, err
}

// ClearCache removes all cached files
func (g *GoogleClassicTTSEngine) ClearCache() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return os.RemoveAll(g.cacheDirectory())
}

// Close releases the underlying gRPC connection.
func (g *GoogleClassicTTSEngine) Close() error {
	return g.client.Close()
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}
