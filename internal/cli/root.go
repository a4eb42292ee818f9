package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/memora/internal/config"
	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/dl-alexandre/memora/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
	appConfig      = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "memora-agent",
	Short: "Memora sync agent - mirror a local directory to the metadata service",
	Long: `memora-agent walks a local directory tree and mirrors every file and
directory to the Memora metadata service. Progress is kept in a local index
so restarts never upload a path twice.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(cmd); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
		}
		appConfig = cfg
		if !cmd.Flags().Changed("output") && !globalFlags.JSON {
			globalFlags.OutputFormat = cfg.DefaultOutputFormat
		}
		if !cmd.Flags().Changed("profile") {
			globalFlags.Profile = cfg.DefaultProfile
		}

		level := logging.ParseLevel(cfg.LogLevel)
		if globalFlags.Verbose {
			level = logging.DEBUG
		}
		logFile := globalFlags.LogFile
		if logFile == "" {
			logFile = cfg.LogFile
		}

		logConfig := logging.DefaultLogConfig()
		logConfig.Level = level
		logConfig.OutputFile = logFile
		logConfig.EnableConsole = !globalFlags.Quiet
		logConfig.EnableDebug = globalFlags.Debug || cfg.LogLevel == "debug"
		logConfig.EnableColor = cfg.ColorOutput

		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newOutput()
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		}
		return out.WriteSuccess("version", info)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "default", "Credential profile to use")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Log every HTTP request")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags(cmd *cobra.Command) error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if globalFlags.Config != "" {
		return config.LoadFrom(globalFlags.Config)
	}
	return config.Load()
}

func saveConfig(cfg *config.Config) error {
	if globalFlags.Config != "" {
		return cfg.SaveTo(globalFlags.Config)
	}
	return cfg.Save()
}

func newOutput() *config.OutputFormatter {
	return config.NewOutputFormatter(config.OutputOptions{
		Format:      globalFlags.OutputFormat,
		Quiet:       globalFlags.Quiet,
		Verbose:     globalFlags.Verbose,
		ColorOutput: appConfig.ColorOutput,
	})
}

// reportedError is returned by a command after its error envelope has been
// written, so Execute only has to pick the exit code
type reportedError struct {
	cliErr types.CLIError
}

func (e *reportedError) Error() string {
	return e.cliErr.Message
}

// writeError writes err as the command's error envelope
func writeError(out *config.OutputFormatter, command string, err error) error {
	cliErr := toCLIError(err)
	if writeErr := out.WriteError(command, cliErr); writeErr != nil {
		return writeErr
	}
	return &reportedError{cliErr: cliErr}
}

func toCLIError(err error) types.CLIError {
	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.cliErr
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return utils.ExitSuccess
	}

	cliErr := toCLIError(err)
	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cliErr.Message)
	}
	return utils.GetExitCode(cliErr.Code)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
