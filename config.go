package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	databaseURL    string
	gameOverDelay  time.Duration
	mainWindow     time.Duration
	messageBurst   int
	messageRate    float64
	port           int
	prefix         string
	profile        bool
	roundWindow    time.Duration
	sessionTimeout time.Duration
	settleDelay    time.Duration
	shadowValidate bool
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	bot BotConfig
}

type BotConfig struct {
	server string
	code   string
	name   string
	plates float64
	recall float64
	seed   uint64
	start  bool
	think  time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roundWindow <= 0 || c.mainWindow <= 0 {
		return fmt.Errorf("turn windows must be positive: --round-window=%s --main-window=%s", c.roundWindow, c.mainWindow)
	}
	if c.settleDelay < 0 || c.gameOverDelay < 0 {
		return fmt.Errorf("delays must not be negative: --settle-delay=%s --game-over-delay=%s", c.settleDelay, c.gameOverDelay)
	}
	if c.messageRate <= 0 || c.messageBurst < 1 {
		return fmt.Errorf("invalid message limit: --message-rate=%v --message-burst=%d", c.messageRate, c.messageBurst)
	}
	return nil
}

func (b *BotConfig) validate() error {
	if b.server == "" {
		return errors.New("--server is required")
	}
	if b.recall < 0 || b.recall > 1 {
		return fmt.Errorf("invalid recall (must be between 0-1 inclusive): %v", b.recall)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) timing() match.Timing {
	return match.Timing{
		RoundWindow: c.roundWindow,
		MainWindow:  c.mainWindow,
		Settle:      c.settleDelay,
	}
}

// bindFlags normalizes flag names and lets every flag in fs be set from
// the environment under prefix.
func bindFlags(fs *pflag.FlagSet, prefix string) {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "platematch",
		Short:         "A two-player plate matching memory game, served over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd.Flags(), "PLATEMATCH")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PLATEMATCH_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string for match results; in-memory when empty (env: PLATEMATCH_DATABASE_URL)")
	fs.DurationVar(&cfg.gameOverDelay, "game-over-delay", 5*time.Second, "time a finished game stays open before the room is closed (env: PLATEMATCH_GAME_OVER_DELAY)")
	fs.DurationVar(&cfg.mainWindow, "main-window", match.DefaultTiming.MainWindow, "time allowed per turn in the main phase (env: PLATEMATCH_MAIN_WINDOW)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 20, "websocket messages a connection may send in a burst (env: PLATEMATCH_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 10, "websocket messages per second a connection may sustain (env: PLATEMATCH_MESSAGE_RATE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PLATEMATCH_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PLATEMATCH_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PLATEMATCH_PROFILE)")
	fs.DurationVar(&cfg.roundWindow, "round-window", match.DefaultTiming.RoundWindow, "time allowed per turn in the round phase (env: PLATEMATCH_ROUND_WINDOW)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: PLATEMATCH_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.settleDelay, "settle-delay", match.DefaultTiming.Settle, "pause between the last round and the main phase (env: PLATEMATCH_SETTLE_DELAY)")
	fs.BoolVar(&cfg.shadowValidate, "shadow-validate", false, "replay every room's events on the server and drop illegal ones (env: PLATEMATCH_SHADOW_VALIDATE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PLATEMATCH_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PLATEMATCH_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PLATEMATCH_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PLATEMATCH_VERSION)")

	cmd.AddCommand(newBotCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("platematch v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newBotCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Join (or open) a room and play it with a computer player.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd.Flags(), "PLATEMATCH_BOT")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.bot.validate(); err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&cfg.bot.code, "code", "", "invite code of the room to join; opens a new room when empty (env: PLATEMATCH_BOT_CODE)")
	fs.StringVar(&cfg.bot.name, "name", "Bot", "display name (env: PLATEMATCH_BOT_NAME)")
	fs.Float64Var(&cfg.bot.plates, "plates", match.DefaultPlates, "plate count for a newly opened room (env: PLATEMATCH_BOT_PLATES)")
	fs.Float64Var(&cfg.bot.recall, "recall", 0.7, "chance of remembering a matching pair, 0-1 (env: PLATEMATCH_BOT_RECALL)")
	fs.Uint64Var(&cfg.bot.seed, "seed", 0, "random seed; 0 picks one (env: PLATEMATCH_BOT_SEED)")
	fs.StringVarP(&cfg.bot.server, "server", "s", "http://localhost:8080", "base URL of the platematch server (env: PLATEMATCH_BOT_SERVER)")
	fs.BoolVar(&cfg.bot.start, "start", true, "start the game once both seats are connected, when seated as host (env: PLATEMATCH_BOT_START)")
	fs.DurationVar(&cfg.bot.think, "think", 750*time.Millisecond, "pause before each move (env: PLATEMATCH_BOT_THINK)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PLATEMATCH_BOT_VERBOSE)")

	return cmd
}
