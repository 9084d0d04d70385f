package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/illuminate/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Illuminate configuration",
	Long:  `View and manage Illuminate configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current Illuminate configuration.`,
	Example: `  # Show configuration as YAML (default)
  illuminate config show

  # Show configuration as JSON
  illuminate config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Keys are dotted paths as listed by
'illuminate config keys'. The value is parsed as YAML, so lists are written
as [640x480, 1280x720].`,
	Example: `  # Set the OSC port
  illuminate config set osc.port 9000

  # Capture at two resolutions
  illuminate config set capture.resolutions "[640x480, 1280x720]"

  # Set log level
  illuminate config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get the OSC port
  illuminate config get osc.port

  # Get log level
  illuminate config get log_level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	RunE:  runConfigKeys,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func printValue(v interface{}, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return printValue(configMgr.Get(), formatFlag)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.SetValue(key, value); err != nil {
		return err
	}

	fmt.Printf("✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v, err := configMgr.Value(args[0])
	if err != nil {
		return err
	}

	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return printValue(v, "yaml")
	default:
		fmt.Println(v)
		return nil
	}
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, k := range configMgr.Keys() {
		fmt.Println(k)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}
