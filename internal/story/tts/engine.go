package tts

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeSAPI          EngineType = "sapi"         // Windows only
	EngineTypeAVFoundation  EngineType = "avfoundation" // macOS only
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeOpenAI        EngineType = "openai"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best for platform
)

func (e EngineType) String() string {
	return string(e)
}

type engineDef struct {
	// available reports why the engine cannot run here, or nil.
	available func(Config) error
	build     func(Config) (Synthesizer, error)
}

func onlyOn(goos string) func(Config) error {
	return func(Config) error {
		if runtime.GOOS != goos {
			return fmt.Errorf("engine only supports %s", goos)
		}
		return nil
	}
}

func always(Config) error { return nil }

// engines lists every engine in auto-selection order, best first.
var engines = []struct {
	typ EngineType
	engineDef
}{
	{EngineTypeGoogleClassic, engineDef{
		available: func(Config) error {
			if !hasGoogleCredentials() {
				return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is not set")
			}
			return nil
		},
		build: func(c Config) (Synthesizer, error) {
			e, err := newGoogleClassicTTSEngine(c)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
	}},
	{EngineTypeOpenAI, engineDef{
		available: func(c Config) error {
			if c.OpenAI == nil {
				return fmt.Errorf("OpenAI engine needs an API key (llm.api_key)")
			}
			return nil
		},
		build: func(c Config) (Synthesizer, error) { return newOpenAIEngine(c), nil },
	}},
	{EngineTypeSAPI, engineDef{available: onlyOn("windows"), build: newSAPIEngine}},
	{EngineTypeAVFoundation, engineDef{available: onlyOn("darwin"), build: newAVFoundationEngine}},
	{EngineTypeESpeak, engineDef{
		available: always,
		build: func(c Config) (Synthesizer, error) {
			e, err := newESpeakEngine(c)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
	}},
	{EngineTypeMock, engineDef{
		available: always,
		build:     func(c Config) (Synthesizer, error) { return NewMockTTSEngine(c), nil },
	}},
}

// NewEngine creates a new speech engine based on the provided config. The
// returned Synthesizer is never a typed nil.
func NewEngine(config Config) (Synthesizer, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngineForConfig(config).String()
		logrus.WithField("engine", config.Type).Debug("Auto-selected TTS engine")
	}

	for _, e := range engines {
		if e.typ.String() != config.Type {
			continue
		}
		if err := e.available(config); err != nil {
			return nil, fmt.Errorf("%s: %w", e.typ, err)
		}
		return e.build(config)
	}
	return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
}

// getBestEngineForConfig returns the first usable engine, skipping the mock.
func getBestEngineForConfig(config Config) EngineType {
	for _, e := range engines {
		if e.typ != EngineTypeMock && e.available(config) == nil {
			return e.typ
		}
	}
	return EngineTypeESpeak
}

// GetAvailableEngines returns engines available on the current platform
func GetAvailableEngines(config Config) []EngineType {
	var out []EngineType
	for _, e := range engines {
		if e.available(config) == nil {
			out = append(out, e.typ)
		}
	}
	return out
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}
