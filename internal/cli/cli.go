package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/fanoutgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		configPath string
		cfg        app.Config
		parsed     *app.Config
		showUsage  bool
	)

	cmd := &cobra.Command{
		Use:   "fanoutgo [flags] [CONFIG_PATH]",
		Short: "Recursive fan-out/fan-in tree executor.",
		Long: `fanoutgo walks a tree of work items, fetching every node concurrently under
a global quota and summing a metric from the leaves up to the root.

CONFIG_PATH is a single .hcl file or a directory containing .hcl files.`,
		Example: `  # Run the only run block defined in ./config
  fanoutgo ./config

  # Poll the "hn" run every 30 seconds, three times
  fanoutgo --run hn --period 30s --iterations 3 ./config`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			slog.Debug("Config path determined.", "path", path)
			if path == "" {
				slog.Debug("No config path provided, printing usage and exiting.")
				showUsage = true
				return cmd.Usage()
			}

			cfg.ConfigPath = path
			cfg.LogFormat = strings.ToLower(cfg.LogFormat)
			if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
				return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
			}
			cfg.LogLevel = strings.ToLower(cfg.LogLevel)
			switch cfg.LogLevel {
			case "debug", "info", "warn", "error":
				// valid
			default:
				return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
			}
			slog.Debug("CLI parameter validation complete.")

			c, err := app.NewConfig(cfg)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			parsed = c
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to the config file or directory.")
	flags.StringVar(&cfg.RunName, "run", "", "Name of the run block to execute. Optional when only one is defined.")
	flags.StringVar(&cfg.Root, "root", "", "Override the root identifier of the run.")
	flags.StringVar(&cfg.LogFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&cfg.LogFile, "log-file", "", "Write logs to a rotating file instead of stdout.")
	flags.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	flags.Int64Var(&cfg.Iterations, "iterations", 0, "Number of iterations. 0 runs once, or forever with a period.")
	flags.DurationVar(&cfg.Period, "period", 0, "Re-run the tree on this period, overriding the run block.")

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if parsed == nil || showUsage {
		// Help was requested or no config path was given.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", parsed)
	return parsed, false, nil
}
