package main

import (
	"fmt"
	"os"
	"os/signal"
	"storynest/internal/cli/scheme/colours"
	"storynest/internal/config"
	"storynest/internal/story/nest"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// A local .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to read .env")
	}

	if err := config.Init(); err != nil {
		colours.Error.Printf("❌ Failed to read config: %v\n", err)
		os.Exit(1)
	}
	settings := config.Load()
	logrus.SetLevel(settings.LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	app := nest.NewStoryNest(settings)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Close()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Sweet dreams! 🌙"))
		os.Exit(0)
	}()

	rootCmd := &cobra.Command{
		Use:   "storynest",
		Short: "🏠 A cozy home for bedtime stories",
		Long: `
┌─────────────────────────────────────┐
│  📚 Welcome to StoryNest! 🏠       │
│  A cozy home for bedtime stories    │
│  Written, drawn and read for kids ✨│
└─────────────────────────────────────┘

StoryNest writes a brand new children's story on any topic, can illustrate
it and reads it aloud. Perfect for bedtime! 🌙
		`,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}

	generateCmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "✨ Write a new story",
		Long:  "Generate a story for a topic, then illustrate and narrate it",
		Run:   app.Generate,
	}

	interactiveCmd := &cobra.Command{
		Use:   "interactive",
		Short: "📚 Choose topic, length and language from a menu",
		Run:   app.Interactive,
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 List available voices",
		Run:   app.ListVoices,
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "🗄️ Manage cached narration audio",
	}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "📊 Show cache status",
			Run:   app.ShowCacheStatus,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "🧹 Remove cached audio",
			Run:   app.ClearCache,
		},
	)

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show settings",
		Long:  "Show generator, illustration and voice settings",
		Run:   app.ConfigureSettings,
	}

	// Add flags
	flags := generateCmd.Flags()
	flags.StringP("category", "c", viper.GetString("story.category"), "Story topic, or 'random'")
	flags.StringP("length", "l", viper.GetString("story.length"), "short, medium or long")
	flags.StringP("language", "L", viper.GetString("story.language"), "English, Bahasa or German")
	flags.StringP("moral", "m", "", "Optional lesson the story should teach")
	flags.Bool("images", false, "Illustrate the story")
	flags.Bool("narrate", true, "Prepare narration audio right away")
	flags.Bool("structured", false, "Ask the generator for JSON output")
	flags.Bool("autoplay", false, "Start reading aloud as soon as the story is ready")

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			if level, err := logrus.ParseLevel(lvl); err == nil {
				logrus.SetLevel(level)
			}
		}
	}

	rootCmd.AddCommand(generateCmd, interactiveCmd, voicesCmd, cacheCmd, settingsCmd)

	err := rootCmd.Execute()
	app.Close()
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
}
