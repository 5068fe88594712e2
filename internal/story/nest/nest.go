package nest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"storynest/internal/cli/scheme/colours"
	"storynest/internal/config"
	"storynest/internal/domain/generator"
	"storynest/internal/domain/story"
	"storynest/internal/story/enrich"
	"storynest/internal/story/playback"
	"storynest/internal/story/prompt"
	"storynest/internal/story/tts"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Categories offered by the interactive menu.
var Categories = []string{"random", "animals", "adventure", "fairy tale", "space", "friendship", "magic"}

// StoryNest is the CLI application around an Orchestrator.
type StoryNest struct {
	settings config.Settings
	text     generator.TextGenerator
	images   generator.ImageGenerator
	Tts      tts.Synthesizer
	player   playback.Player

	orch     *Orchestrator
	autoplay atomic.Bool
	ctx      context.Context
	Cancel   context.CancelFunc
	input    *bufio.Reader
}

func NewStoryNest(settings config.Settings) *StoryNest {
	var (
		text   generator.TextGenerator
		images generator.ImageGenerator
		speech tts.SpeechClient
	)

	client, err := generator.NewOpenAI(generator.OpenAIConfig{
		BaseURL:     settings.LLM.BaseURL,
		APIKey:      settings.LLM.APIKey,
		ChatModel:   settings.LLM.Model,
		ImageModel:  settings.Image.Model,
		SpeechModel: settings.TTS.Model,
		Timeout:     settings.LLM.Timeout,
	})
	if err != nil {
		logrus.WithError(err).Warn("OpenAI not available, using the offline story library")
		text = generator.NewSampleLibrary()
	} else {
		text = client
		images = client
		speech = client
	}

	engine, err := tts.NewEngine(tts.Config{
		Type:     settings.TTS.Type,
		Speed:    settings.TTS.Speed,
		Volume:   settings.TTS.Volume,
		Voice:    settings.TTS.Voice,
		CacheDir: settings.TTS.CachePath,
		OpenAI:   speech,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to create tts engine, narration disabled")
		engine = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &StoryNest{
		settings: settings,
		text:     text,
		images:   images,
		Tts:      engine,
		player:   playback.NewBeepPlayer(settings.Playback.SampleRate),
		ctx:      ctx,
		Cancel:   cancel,
		input:    bufio.NewReader(os.Stdin),
	}
}

// Close stops narration and releases engine resources.
func (sn *StoryNest) Close() {
	sn.Cancel()
	if sn.orch != nil {
		sn.orch.Close()
	}
	if c, ok := sn.Tts.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Debug("Failed to close tts engine")
		}
	}
}

func (sn *StoryNest) ShowWelcome() {
	fmt.Println()
	colours.Title.Println("🌟 Welcome to StoryNest! 🌟")
	fmt.Println()
	colours.Info.Println("📚 Available commands:")
	fmt.Println("  • storynest generate    - Write a brand new story")
	fmt.Println("  • storynest interactive - Pick topic, length and language from a menu")
	fmt.Println("  • storynest voices      - List voices of the speech engine")
	fmt.Println("  • storynest cache       - Inspect or clear cached narration")
	fmt.Println("  • storynest settings    - Show current settings")
	fmt.Println()
	colours.Prompt.Println("✨ Ready for a magical story adventure? ✨")
}

// orchestrator builds the session runner for one command invocation.
func (sn *StoryNest) orchestrator(images, narration, structured bool) (*Orchestrator, error) {
	if sn.orch != nil {
		return sn.orch, nil
	}

	strategy := prompt.Unstructured
	if structured {
		strategy = prompt.Structured
	}
	layout, err := enrich.ParseLayout(sn.settings.TTS.Layout)
	if err != nil {
		return nil, err
	}

	speech := sn.Tts
	if images && sn.images == nil {
		colours.Warning.Println("⚠️  Illustrations need an OpenAI API key, skipping them")
		images = false
	}

	e := enrich.New(enrich.Config{
		Images:           sn.images,
		Speech:           speech,
		Prompts:          prompt.Builder{Strategy: strategy},
		MaxIllustrations: sn.settings.Image.MaxIllustrations,
		Cover:            sn.settings.Image.Cover,
		ImageSize:        sn.settings.Image.Size,
		Layout:           layout,
		Voice:            tts.Options{Voice: sn.settings.TTS.Voice, Speed: sn.settings.TTS.Speed, Volume: sn.settings.TTS.Volume},
	})

	orch, err := New(Deps{Text: sn.text, Enricher: e, Player: sn.player},
		WithPrompts(prompt.Builder{Strategy: strategy}),
		WithParams(generator.Params{
			System:      prompt.SystemPrompt,
			Temperature: sn.settings.LLM.Temperature,
			MaxTokens:   sn.settings.LLM.MaxTokens,
		}),
		WithEnrichment(images, narration && speech != nil),
		WithListener(sn.printEvent),
	)
	if err != nil {
		return nil, err
	}
	sn.orch = orch
	return orch, nil
}

func (sn *StoryNest) Generate(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	length, _ := cmd.Flags().GetString("length")
	lang, _ := cmd.Flags().GetString("language")
	moral, _ := cmd.Flags().GetString("moral")
	images, _ := cmd.Flags().GetBool("images")
	narrate, _ := cmd.Flags().GetBool("narrate")
	structured, _ := cmd.Flags().GetBool("structured")
	autoplay, _ := cmd.Flags().GetBool("autoplay")

	if len(args) > 0 {
		category = strings.Join(args, " ")
	}

	req, err := story.NewRequest(category, length, lang, moral)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	sn.runSession(req, images || sn.settings.Image.Enabled, narrate && sn.settings.TTS.Enabled, structured || sn.settings.Story.Structured, autoplay)
}

func (sn *StoryNest) runSession(req story.GenerationRequest, images, narration, structured, autoplay bool) {
	orch, err := sn.orchestrator(images, narration, structured)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}

	// Reading starts from the story event, see printEvent.
	sn.autoplay.Store(autoplay)
	if err := orch.Generate(sn.ctx, req); err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}

	sn.waitForUserInput(orch, req)
}

func (sn *StoryNest) printEvent(ev Event) {
	switch ev.Kind {
	case EventLoading:
		fmt.Println()
		colours.Info.Println("✨ Dreaming up a story...")
	case EventStory:
		fmt.Println()
		colours.Title.Printf("📖 %s\n", ev.Story.Title)
		fmt.Println()
		for _, p := range ev.Story.Paragraphs {
			colours.Paragraph.Println(p)
			fmt.Println()
		}
		if sn.autoplay.Load() && sn.orch != nil {
			sn.orch.Play()
		}
	case EventIllustration:
		printIllustration(*ev.Illustration)
	case EventNarration:
		if ev.Err != nil {
			colours.Warning.Printf("🔇 Narration unavailable: %v\n", ev.Err)
			return
		}
		colours.Media.Printf("🎧 Narration ready (%d segments)\n", len(ev.Narration.Segments))
	case EventError:
		colours.Error.Printf("❌ %s\n", ev.Message)
		logrus.WithError(ev.Err).Debug("Generation error details")
	case EventPlayback:
		printPlayback(ev.Playback)
	}
}

func printIllustration(r enrich.IllustrationResult) {
	where := "cover"
	if r.ParagraphIndex != nil {
		where = "paragraph " + strconv.Itoa(*r.ParagraphIndex+1)
	}
	if r.Err != nil {
		colours.Warning.Printf("🖼️  No illustration for %s\n", where)
		logrus.WithError(r.Err).Debug("Illustration error details")
		return
	}
	if r.Illustration.URL != "" {
		colours.Media.Printf("🖼️  Illustration for %s: %s\n", where, r.Illustration.URL)
		return
	}
	colours.Media.Printf("🖼️  Illustration for %s (%d bytes %s)\n", where, len(r.Illustration.Data), r.Illustration.MIMEType)
}

func printPlayback(s playback.State) {
	switch s.Status {
	case playback.Loading:
		colours.Info.Println("🎵 Preparing narration...")
	case playback.Playing:
		colours.Success.Printf("▶️  Playing part %d of %d\n", s.Segment+1, s.Total)
	case playback.Paused:
		colours.Warning.Println("⏸️  Paused")
	case playback.Error:
		colours.Error.Printf("❌ Playback: %v\n", s.Err)
	case playback.Idle:
		if s.Total > 0 {
			colours.Muted.Println("⏹️  Narration stopped")
		}
	}
}

func (sn *StoryNest) waitForUserInput(orch *Orchestrator, req story.GenerationRequest) {
	for {
		select {
		case <-sn.ctx.Done():
			return
		default:
			fmt.Print("\n⏯️  'r' read aloud, 'p' pause/resume, 'n' next part, 's' stop, 'g' new story, 'q' quit: ")
			input, err := sn.input.ReadString('\n')
			if err != nil {
				orch.Stop()
				return
			}
			input = strings.TrimSpace(strings.ToLower(input))

			switch input {
			case "r", "read", "play":
				orch.Play()
			case "p", "pause":
				if orch.Snapshot().Playback.Status == playback.Paused {
					orch.Resume()
				} else {
					orch.Pause()
				}
			case "n", "next":
				orch.Skip()
			case "s", "stop":
				orch.Stop()
			case "g", "again":
				if err := orch.Generate(sn.ctx, req); err != nil {
					colours.Error.Printf("❌ %v\n", err)
				}
			case "q", "quit":
				orch.Stop()
				colours.Prompt.Println("😴 Sleep tight! 🌙")
				return
			case "":
				continue
			default:
				colours.Info.Println("ℹ️  Use 'r', 'p', 'n', 's', 'g' or 'q'")
			}
		}
	}
}

// Interactive asks for the request parameters one by one.
func (sn *StoryNest) Interactive(cmd *cobra.Command, args []string) {
	fmt.Println()
	colours.Title.Println("📚 Choose Your Story Adventure! 📚")
	fmt.Println()

	category, ok := sn.choose("🌟 Pick a topic", Categories)
	if !ok {
		return
	}
	length, ok := sn.choose("⏱️  How long", []string{"short", "medium", "long"})
	if !ok {
		return
	}
	var languages []string
	for _, l := range story.SupportedLanguages() {
		languages = append(languages, l.String())
	}
	lang, ok := sn.choose("🌍 Which language", languages)
	if !ok {
		return
	}

	colours.Prompt.Print("💡 A lesson to learn (Enter to skip): ")
	moral, _ := sn.input.ReadString('\n')

	req, err := story.NewRequest(category, length, lang, moral)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	sn.runSession(req, sn.settings.Image.Enabled, sn.settings.TTS.Enabled, sn.settings.Story.Structured, false)
}

func (sn *StoryNest) choose(label string, options []string) (string, bool) {
	for i, o := range options {
		fmt.Printf("  %d. ", i+1)
		colours.Title.Println(o)
	}
	colours.Prompt.Printf("%s? Enter a number (or 'q' to quit): ", label)

	input, _ := sn.input.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "q" || input == "quit" {
		colours.Warning.Println("👋 Maybe next time! Sweet dreams! 🌙")
		return "", false
	}

	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > len(options) {
		colours.Error.Println("❌ Invalid selection! Please try again.")
		return "", false
	}
	fmt.Println()
	return options[choice-1], true
}

func (sn *StoryNest) ListVoices(cmd *cobra.Command, args []string) {
	fmt.Println()
	colours.Title.Println("🎤 Available Voices 🎤")
	fmt.Println()

	lister, ok := sn.Tts.(tts.VoiceLister)
	if !ok {
		colours.Warning.Println("The current speech engine cannot list voices")
		return
	}
	voices, err := lister.GetAvailableVoices(sn.ctx)
	if err != nil {
		colours.Error.Printf("❌ Failed to list voices: %v\n", err)
		return
	}
	sort.Strings(voices)
	for _, v := range voices {
		fmt.Printf("  • %s\n", v)
	}
	colours.Success.Printf("✨ %d voices\n", len(voices))
}

func (sn *StoryNest) cacheEngine() (tts.CacheableEngine, bool) {
	c, ok := sn.Tts.(tts.CacheableEngine)
	if !ok {
		colours.Warning.Println("The current speech engine does not cache audio")
	}
	return c, ok
}

// ShowCacheStatus displays information about cached narration audio
func (sn *StoryNest) ShowCacheStatus(cmd *cobra.Command, args []string) {
	colours.Title.Println("📊 Narration Cache Status")

	c, ok := sn.cacheEngine()
	if !ok {
		return
	}
	stats, err := c.GetCacheStats()
	if err != nil {
		colours.Error.Printf("❌ Failed to get cache info: %v\n", err)
		return
	}
	colours.Info.Printf("📁 Location: %v\n", stats["cache_directory"])
	colours.Info.Printf("🎵 Files: %v\n", stats["cached_files"])
	colours.Info.Printf("📏 Size: %.2f MB\n", stats["total_size_mb"])
}

func (sn *StoryNest) ClearCache(cmd *cobra.Command, args []string) {
	c, ok := sn.cacheEngine()
	if !ok {
		return
	}
	if err := c.ClearCache(); err != nil {
		colours.Error.Printf("❌ Failed to clear cache: %v\n", err)
		return
	}
	colours.Success.Println("✅ Cache cleared")
}

func (sn *StoryNest) ConfigureSettings(cmd *cobra.Command, args []string) {
	s := sn.settings

	fmt.Println()
	colours.Title.Println("⚙️ Settings ⚙️")
	fmt.Println()

	colours.Prompt.Println("🧠 Story generator:")
	if s.LLM.APIKey == "" {
		fmt.Println("  • Offline library (set OPENAI_API_KEY for new stories)")
	} else {
		fmt.Printf("  • Model: %s at %s\n", s.LLM.Model, s.LLM.BaseURL)
	}
	fmt.Printf("  • Defaults: %s, %s, %s\n", s.Story.Category, s.Story.Length, s.Story.Language)
	fmt.Println()

	colours.Prompt.Println("🖼️  Illustrations:")
	fmt.Printf("  • Enabled: %t, up to %d, size %s, cover %t\n", s.Image.Enabled, s.Image.MaxIllustrations, s.Image.Size, s.Image.Cover)
	fmt.Println()

	colours.Prompt.Println("🎤 Voice Settings:")
	fmt.Printf("  • Engine: %s\n", s.TTS.Type)
	fmt.Printf("  • Current voice: %s\n", s.TTS.Voice)
	fmt.Printf("  • Speed: %.1fx\n", s.TTS.Speed)
	fmt.Printf("  • Volume: %.0f%%\n", s.TTS.Volume*100)
	fmt.Printf("  • Narration: %s\n", s.TTS.Layout)
	fmt.Println()

	var engines []string
	for _, e := range tts.GetAvailableEngines(tts.Config{OpenAI: sn.speechClient()}) {
		engines = append(engines, e.String())
	}
	colours.Info.Printf("💡 Engines on this machine: %s\n", strings.Join(engines, ", "))
	colours.Info.Println("💡 Change settings in ~/.storynest/storynest.yaml or with STORYNEST_* variables")
}

func (sn *StoryNest) speechClient() tts.SpeechClient {
	if c, ok := sn.text.(*generator.OpenAI); ok {
		return c
	}
	return nil
}
