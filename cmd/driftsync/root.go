package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that load configuration themselves
// rather than through the automatic PersistentPreRunE resolution.
const skipConfigAnnotation = "skipConfig"

// CLIFlags captures the resolved global flags for a command invocation.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
}

// CLIContext bundles resolved config, flags, and logger. Built once in
// PersistentPreRunE so RunE handlers never reload configuration themselves.
type CLIContext struct {
	Cfg    *config.Config
	Flags  CLIFlags
	Logger *slog.Logger
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context. Returns
// nil if no config was loaded (commands annotated with skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics. Always a programmer
// error — the command tree guarantees PersistentPreRunE ran first.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "driftsync",
		Short:   "Serverless peer-to-peer folder sync",
		Long:    "driftsync replicates local folders across devices directly, with no central server.",
		Version: version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newPeerCmd())

	return cmd
}

// resolveConfigPath applies the env-override -> flag precedence for the
// config file location (spec.md §6 DRIFTSYNC_CONFIG).
func resolveConfigPath(env config.EnvOverrides) string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return config.DefaultConfigPath()
}

// loadConfig resolves effective configuration and stores it, along with the
// command's flags and a configured logger, in the command's context.
func loadConfig(cmd *cobra.Command) error {
	bootstrapLogger := buildLogger(nil)

	env := config.ReadEnvOverrides()
	cfgPath := resolveConfigPath(env)

	cfg, err := config.LoadOrDefault(cfgPath, bootstrapLogger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg)

	cc := &CLIContext{
		Cfg: cfg,
		Flags: CLIFlags{
			ConfigPath: cfgPath,
			JSON:       flagJSON,
			Quiet:      flagQuiet,
		},
		Logger: logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap. Config-file log level is the
// baseline; --verbose, --debug, and --quiet override it since CLI flags
// always win, and are mutually exclusive (enforced by Cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	switch {
	case flagVerbose:
		level = slog.LevelInfo
	case flagDebug:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
