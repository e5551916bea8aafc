package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the flags shared by every subcommand.
type Config struct {
	server  string
	player  string
	timeout time.Duration
	verbose bool

	// log writes to the command's stderr. The global zerolog logger is never touched.
	log zerolog.Logger
}

func (c *Config) validate() error {
	u, err := url.Parse(c.server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --server %q: want an http(s) url", c.server)
	}
	if c.timeout <= 0 {
		return fmt.Errorf("invalid --timeout %s", c.timeout)
	}
	return nil
}

func (c *Config) requirePlayer() (string, error) {
	if c.player == "" {
		return "", fmt.Errorf("--player is required (env: TURINGCTL_PLAYER)")
	}
	return c.player, nil
}

func (c *Config) gameClient() *transport.GameClient {
	policy := transport.DefaultRetryPolicy()
	policy.AttemptTimeout = c.timeout
	req := transport.NewRequester(&http.Client{}, policy, clockwork.NewRealClock())
	req.OnRetry = func(attempt int, delay time.Duration, reason error) {
		c.log.Warn().
			Err(reason).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying request")
	}
	return transport.NewGameClient(c.server, req)
}

func newRootCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TURINGCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "turingctl",
		Short: "Play a turingroom game from the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if cfg.verbose {
				level = zerolog.DebugLevel
			}
			cfg.log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()
			return cfg.validate()
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "game server base url (env: TURINGCTL_SERVER)")
	fs.StringVarP(&cfg.player, "player", "p", "", "acting player id (env: TURINGCTL_PLAYER)")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-attempt request timeout (env: TURINGCTL_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log retries and stream state (env: TURINGCTL_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newCreateCmd(cfg),
		newJoinCmd(cfg),
		newSnapshotCmd(cfg),
		newReadyCmd(cfg),
		newStartCmd(cfg),
		newResponderCmd(cfg),
		newAskCmd(cfg),
		newAnswerCmd(cfg),
		newVoteCmd(cfg),
		newLeaveCmd(cfg),
		newKickCmd(cfg),
		newDisbandCmd(cfg),
		newProfilesCmd(cfg),
		newWatchCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
