package commands

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/illuminate/internal/settings"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect saved effect settings",
	Long:  `Inspect the effect settings written by /1/save.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show [PATH]",
	Short: "Show saved settings",
	Long: `Parse and display a settings file. Without PATH the file named by the
settings_path config key is used, or the default location.`,
	Example: `  # Show the default settings file
  illuminate settings show

  # Show a specific file as JSON
  illuminate settings show ./settings.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettingsShow,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	RunE:  runSettingsPath,
}

var settingsFormat string

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsPathCmd)

	settingsShowCmd.Flags().StringVarP(&settingsFormat, "format", "f", "yaml", "output format (yaml or json)")
}

func settingsPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.SettingsPath != "" {
		return cfg.SettingsPath, nil
	}
	return settings.DefaultPath(), nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	path, err := settingsPath(args)
	if err != nil {
		return err
	}

	rec, err := settings.NewStore(path).Load()
	if errors.Is(err, settings.ErrNoSettings) {
		fmt.Printf("No settings saved at %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	return printValue(rec, settingsFormat)
}

func runSettingsPath(cmd *cobra.Command, args []string) error {
	path, err := settingsPath(nil)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
