package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/illuminate/internal/config"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "illuminate",
		Short: "Illuminate - live camera feedback installation",
		Long: `Illuminate captures a live camera feed and composites it with its own
decaying history, producing hue-rotating light trails that are projected
full screen.

Features:
  • V4L2 camera capture through GStreamer
  • Feedback trails with frame-skip gated decay
  • Oscillating hue rotation
  • Live control over OSC (TouchOSC layout /1/...)
  • HTTP API, WebSocket control feed and MJPEG preview
  • Save and restore of effect settings`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/illuminate/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("illuminate")
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies the global flag overrides,
// then initializes logging.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
	if viper.IsSet("log_pretty") {
		cfg.LogPretty = viper.GetBool("log_pretty")
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
