package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/eventgw/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the eventgw config file",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		}
		if err := config.WriteDefaultConfig(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfgPath, out)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one key in the config file, keeping comments",
	Long: `Set a dotted key in the config file. Values are YAML, so lists use
flow syntax. The file is left unchanged if the result does not validate.

Example:
  eventgw config set sink.kind jsonl
  eventgw config set write_timeout 2s
  eventgw config set categories "[claude, terminal, build]"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setConfigValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "set %s in %s\n", args[0], cfgPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// setConfigValue applies the edit, then reloads and validates the file,
// restoring the previous contents if the new config is invalid.
func setConfigValue(path, key, value string) error {
	prev, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := config.SetValue(path, key, value); err != nil {
		return err
	}

	next, _, err := loadConfig(viper.New(), path)
	if err == nil {
		err = config.Validate(next)
	}
	if err == nil {
		return nil
	}

	if existed {
		_ = os.WriteFile(path, prev, 0o600)
	} else {
		_ = os.Remove(path)
	}
	return fmt.Errorf("rejected %s=%s: %w", key, value, err)
}
