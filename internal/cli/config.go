package cli

import (
	"fmt"

	"github.com/dl-alexandre/memora/internal/config"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing memora-agent configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration (file, then MEMORA_* environment overrides)",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value by its JSON name. Use 'config show' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return newOutput().WriteSuccess("config.show", appConfig)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput()
	key, value := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return writeError(out, "config.set", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err))
	}

	if err := cfg.Set(key, value); err != nil {
		return writeError(out, "config.set", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).
			Build(), err))
	}

	if err := saveConfig(cfg); err != nil {
		return writeError(out, "config.set", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build(), err))
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg := config.DefaultConfig()
	if err := saveConfig(cfg); err != nil {
		return writeError(out, "config.reset", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build(), err))
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}
