// Package main provides the entry point for the narrator CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/odysseyos/narrator/narrate"
	"github.com/odysseyos/narrator/narrate/engines/command"
	"github.com/odysseyos/narrator/narrate/engines/mock"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	engineName string
	voiceName  string
	speechRate float64
	maxSegment int
	tuiMode    bool
	watchMode  bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "narrator [FILE]",
		Short: "Read text files aloud, with word-by-word highlighting",
		Long: paragraph(
			fmt.Sprintf("\nRead text files aloud, %s.", keyword("word by word")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides readable narration input.
type source struct {
	reader io.ReadCloser
	path   string
}

// sourceFromArg creates a readable source for a CLI argument.
func sourceFromArg(arg string) (*source, error) {
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}
	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	p, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, p}, nil
}

func validateOptions(cmd *cobra.Command) error {
	engineName = viper.GetString("engine")
	voiceName = viper.GetString("voice")
	speechRate = viper.GetFloat64("rate")
	maxSegment = viper.GetInt("max-segment")
	tuiMode = viper.GetBool("tui")
	watchMode = viper.GetBool("watch")
	debug = viper.GetBool("debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if watchMode && !tuiMode {
		// Watch mode outside the TUI still works; it just logs progress
		// instead of highlighting.
		log.Debug("watch mode without tui; progress goes to the log")
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if tuiMode && !isTerminal {
		return errors.New("cannot use tui mode when stdout is not a terminal")
	}
	return nil
}

// loadConfig builds the narration config: defaults, then the config
// file, then environment variables, then flags. Later layers win.
func loadConfig(cmd *cobra.Command) (narrate.Config, error) {
	cfg := narrate.DefaultConfig()

	if used := viper.ConfigFileUsed(); used != "" {
		b, err := os.ReadFile(used)
		if err != nil {
			return cfg, fmt.Errorf("unable to read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse environment: %w", err)
	}

	if cmd.Flags().Changed("engine") {
		cfg.Engine = engineName
	}
	if cmd.Flags().Changed("voice") {
		cfg.Voice = voiceName
	}
	if cmd.Flags().Changed("rate") {
		cfg.Rate = speechRate
	}
	if cmd.Flags().Changed("max-segment") {
		cfg.MaxSegmentLength = maxSegment
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildEngine constructs the configured narration backend. The "none"
// engine returns nil, which turns the coordinator into a no-op.
func buildEngine(cfg narrate.Config, logger *log.Logger) (narrate.Engine, error) {
	switch cfg.Engine {
	case "command":
		return command.New(cfg.Command, logger)
	case "mock":
		return mock.New(mock.Config{}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var src *source
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes {
		src = &source{reader: os.Stdin}
	} else {
		if len(args) == 0 {
			return errors.New("missing input: pass a file or pipe text on stdin")
		}
		src, err = sourceFromArg(args[0])
		if err != nil {
			return err
		}
	}
	defer src.reader.Close() //nolint:errcheck

	b, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read input: %w", err)
	}
	text := string(b)
	log.Debug("input loaded",
		"path", src.path,
		"size", humanize.Bytes(uint64(len(b))))

	if watchMode && src.path == "" {
		return errors.New("--watch requires a file argument")
	}

	engine, err := buildEngine(cfg, log.Default())
	if err != nil {
		return err
	}
	coordinator := narrate.New(engine, cfg, log.Default())
	req := narrate.SpeakRequest{Text: text, Voice: cfg.Voice, Rate: cfg.Rate}

	if tuiMode {
		return runTUI(coordinator, src.path, req)
	}
	return runPlain(coordinator, cfg, src.path, req)
}

// runPlain narrates without a TUI: speak once, or keep re-narrating on
// file changes in watch mode, until interrupted.
func runPlain(c *narrate.Coordinator, cfg narrate.Config, path string, req narrate.SpeakRequest) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer c.Stop()

	c.SetCallbacks(narrate.Callbacks{
		OnStart: func(token uint64) {
			log.Debug("narration started", "token", token)
		},
		OnEnd: func(token uint64) {
			log.Debug("narration ended", "token", token)
		},
		OnError: func(err error) {
			log.Error("narration failed", "error", err)
		},
	})

	if !watchMode {
		return c.Speak(ctx, req)
	}

	// The dispatcher supplies its own context; narration must die with
	// the signal context, so Speak runs under that instead.
	queue := narrate.NewQueue(func(_ context.Context, r narrate.SpeakRequest) error {
		return c.Speak(ctx, r)
	}, cfg.QueueDelay, log.Default())
	defer queue.Close()

	stopWatch, err := watchFile(path, func() {
		b, err := os.ReadFile(path)
		if err != nil {
			log.Error("unable to re-read file", "path", path, "error", err)
			return
		}
		next := req
		next.Text = string(b)
		if err := queue.Enqueue(path, next, nil); err != nil {
			log.Error("unable to queue narration", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer stopWatch()

	if err := queue.Enqueue(path, req, nil); err != nil {
		return err
	}
	<-ctx.Done()
	// Stop the active narration before the deferred Close, which blocks
	// until any in-flight execution finishes.
	c.Stop()
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "command", "narration engine (command, mock, none)")
	rootCmd.Flags().StringVar(&voiceName, "voice", "", "preferred voice name")
	rootCmd.Flags().Float64VarP(&speechRate, "rate", "r", 1.0, "speech rate multiplier")
	rootCmd.Flags().IntVar(&maxSegment, "max-segment", 0, "maximum segment length in characters (0 for default)")
	rootCmd.Flags().BoolVarP(&tuiMode, "tui", "t", false, "narrate with the interactive TUI")
	rootCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-narrate when the file changes")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "debug logging")

	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("max-segment", rootCmd.Flags().Lookup("max-segment"))
	_ = viper.BindPFlag("tui", rootCmd.Flags().Lookup("tui"))
	_ = viper.BindPFlag("watch", rootCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))

	viper.SetDefault("engine", "command")
	viper.SetDefault("rate", 1.0)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "narrator")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrator")}, dirs...)
	}

	if c := os.Getenv("NARRATOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrator")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("narrator")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "narrator.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// setupLog routes debug logging to a file so it never corrupts the TUI.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	logFile := os.Getenv("NARRATOR_LOGFILE")
	if logFile == "" {
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}

var (
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	paraStyle    = lipgloss.NewStyle().Margin(1, 2)
)

func keyword(s string) string {
	return keywordStyle.Render(s)
}

func paragraph(s string) string {
	return paraStyle.Render(strings.TrimSpace(s))
}
