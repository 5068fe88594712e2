package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings is the typed view of the viper configuration.
type Settings struct {
	LLM      LLM
	Image    Image
	TTS      TTS
	Story    Story
	Playback Playback
	LogLevel logrus.Level
}

type LLM struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Image struct {
	Enabled          bool
	Model            string
	Size             string
	MaxIllustrations int
	Cover            bool
}

type TTS struct {
	Type      string
	Voice     string
	Speed     float64
	Volume    float64
	CachePath string
	Model     string
	Layout    string
	Enabled   bool
}

type Story struct {
	Structured bool
	Language   string
	Length     string
	Category   string
}

type Playback struct {
	SampleRate int
}

// Init wires the config file search path and environment overrides.
// A missing config file is not an error.
func Init() error {
	viper.SetConfigName("storynest")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.storynest")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("storynest")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The usual OpenAI variable works without the prefix.
	if err := viper.BindEnv("llm.api_key", "STORYNEST_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return err
	}

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		logrus.Debug("No config file found, using defaults")
	}
	return nil
}

func SetDefaults() {
	viper.SetDefault("llm.base_url", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.8)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("llm.timeout", 60*time.Second)

	viper.SetDefault("image.enabled", false)
	viper.SetDefault("image.model", "dall-e-2")
	viper.SetDefault("image.size", "256x256")
	viper.SetDefault("image.max_illustrations", 3)
	viper.SetDefault("image.cover", false)

	viper.SetDefault("tts.enabled", true)
	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.voice", "default")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.volume", 0.8)
	viper.SetDefault("tts.cache_path", DefaultCacheDir())
	viper.SetDefault("tts.model", "tts-1")
	viper.SetDefault("tts.layout", "story")

	viper.SetDefault("story.structured", false)
	viper.SetDefault("story.language", "English")
	viper.SetDefault("story.length", "short")
	viper.SetDefault("story.category", "random")

	viper.SetDefault("playback.sample_rate", 44100)

	viper.SetDefault("log.level", "warn")
}

// Load reads the current values. Unknown log levels fall back to warn.
func Load() Settings {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.WarnLevel
	}

	return Settings{
		LLM: LLM{
			BaseURL:     viper.GetString("llm.base_url"),
			APIKey:      viper.GetString("llm.api_key"),
			Model:       viper.GetString("llm.model"),
			Temperature: viper.GetFloat64("llm.temperature"),
			MaxTokens:   viper.GetInt("llm.max_tokens"),
			Timeout:     viper.GetDuration("llm.timeout"),
		},
		Image: Image{
			Enabled:          viper.GetBool("image.enabled"),
			Model:            viper.GetString("image.model"),
			Size:             viper.GetString("image.size"),
			MaxIllustrations: viper.GetInt("image.max_illustrations"),
			Cover:            viper.GetBool("image.cover"),
		},
		TTS: TTS{
			Enabled:   viper.GetBool("tts.enabled"),
			Type:      viper.GetString("tts.type"),
			Voice:     viper.GetString("tts.voice"),
			Speed:     viper.GetFloat64("tts.speed"),
			Volume:    viper.GetFloat64("tts.volume"),
			CachePath: viper.GetString("tts.cache_path"),
			Model:     viper.GetString("tts.model"),
			Layout:    viper.GetString("tts.layout"),
		},
		Story: Story{
			Structured: viper.GetBool("story.structured"),
			Language:   viper.GetString("story.language"),
			Length:     viper.GetString("story.length"),
			Category:   viper.GetString("story.category"),
		},
		Playback: Playback{
			SampleRate: viper.GetInt("playback.sample_rate"),
		},
		LogLevel: level,
	}
}

// DefaultCacheDir returns the directory used for cached narration audio.
func DefaultCacheDir() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "storynest")
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".storynest", "cache")
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "cache")
	}
	return "cache"
}
