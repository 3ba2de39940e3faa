package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m96-chan/chatly/internal/app"
	"github.com/m96-chan/chatly/internal/config"
	"github.com/m96-chan/chatly/internal/consts"
	"github.com/m96-chan/chatly/internal/logger"
)

// Version information, set from main via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

type rootOptions struct {
	configPath string
	logPath    string
	logLevel   string
	envFile    string
	overrides  []string

	cfg       *config.Config
	logCloser io.Closer
}

// Run parses CLI flags, sets up logging and config, and runs the selected
// command.
func Run() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           consts.Name,
		Short:         "Channel directory and unread counts for Chatly and Slack",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logCloser != nil {
				_ = opts.logCloser.Close()
			}
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("%s %s\n  commit: %s\n  built:  %s\n", consts.Name, Version, Commit, Date))

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config-path", config.DefaultPath(), "path to config file")
	flags.StringVar(&opts.logPath, "log-path", logger.DefaultPath(), `path to log file ("-" for stderr)`)
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with CHATLY_* variables")
	flags.StringArrayVar(&opts.overrides, "set", nil, "override a boolean option for this run (option=value, option?, option)")

	root.AddCommand(
		newChannelsCmd(opts),
		newWatchCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newOptionsCmd(opts),
	)
	return root
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", o.envFile, err)
	}

	closer, err := logger.Setup(o.logPath, logger.ParseLevel(o.logLevel))
	if err != nil {
		return err
	}
	o.logCloser = closer

	slog.Info("starting "+consts.Name, "version", Version, "command", cmd.Name(), "config", o.configPath)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	lines, err := app.ApplyOverrides(cfg, o.overrides)
	if err != nil {
		return err
	}
	for _, line := range lines {
		slog.Info("option override", "result", line)
	}
	o.cfg = cfg
	return nil
}
