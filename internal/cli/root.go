// Package cli wires the `clovisd` command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/clovis-agent/clovis/pkg/config"
	"github.com/clovis-agent/clovis/pkg/logger"
)

// GlobalFlags are the root command's persistent flags, set once per
// process invocation.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// settingsFromCommand loads Settings using the resolved --config flag (or
// the default settings path) and initializes the global logger.
func settingsFromCommand(cmd *cobra.Command) (*config.Settings, error) {
	configPath := globalFlags.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logLevel := cfg.Log.Level
	if globalFlags.Verbose {
		logLevel = "debug"
	}
	if globalFlags.Quiet {
		logLevel = "error"
	}

	if err := logger.Init(logger.LogConfig{Level: logLevel, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewRootCmd constructs the `clovisd` root command and its subcommand
// tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clovisd",
		Short: "Clovis - multi-agent computer-use orchestrator",
		Long: `clovisd runs the Clovis orchestrator: a Router that delegates
browser, CLI, screen-annotation, and desktop-vision tasks to dedicated
agents, driving an on-screen overlay through a WebSocket transport.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTrayCmd())
	rootCmd.AddCommand(NewAuthCmd())
	rootCmd.AddCommand(NewBackgroundCmd())
	rootCmd.AddCommand(NewDoctorCmd())

	return rootCmd
}
