package cli

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clovis-agent/clovis/pkg/config"
)

// NewDoctorCmd creates the doctor command: a list of named settings-file
// checks, each ok/warning/error, printed and summarized, without
// constructing a full
// Daemon.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the Clovis installation",
		Long: `Run diagnostic checks against the Clovis settings file.

This command checks:
- Settings file validity
- Overlay port availability
- Model provider credentials
- CLI runner bundle presence`,
		RunE: runDoctor,
	}
	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Clovis Doctor")
	fmt.Println("=============")
	fmt.Println()

	configPath := globalFlags.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return err
		}
	}

	var results []checkResult
	results = append(results, checkSettingsFile(configPath))

	cfg, err := config.Load(configPath)
	if err == nil {
		results = append(results, checkModelProvider(cfg))
		results = append(results, checkOverlayPort(cfg))
		results = append(results, checkCLIRunner(cfg))
	}

	hasErrors := false
	hasWarnings := false
	for _, r := range results {
		icon := "OK"
		switch r.status {
		case "warning":
			icon = "WARN"
			hasWarnings = true
		case "error":
			icon = "FAIL"
			hasErrors = true
		}
		fmt.Printf("[%s] %s: %s\n", icon, r.name, r.message)
	}

	fmt.Println()
	switch {
	case hasErrors:
		fmt.Println("Some checks failed.")
	case hasWarnings:
		fmt.Println("Some warnings detected; clovisd should still run.")
	default:
		fmt.Println("All checks passed.")
	}
	return nil
}

func checkSettingsFile(path string) checkResult {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{name: "Settings File", status: "warning", message: fmt.Sprintf("not found: %s (using defaults)", path)}
	}
	if _, err := config.Load(path); err != nil {
		return checkResult{name: "Settings File", status: "error", message: fmt.Sprintf("invalid: %v", err)}
	}
	return checkResult{name: "Settings File", status: "ok", message: fmt.Sprintf("found: %s", path)}
}

func checkModelProvider(cfg *config.Settings) checkResult {
	if cfg.ModelProvider.Endpoint == "" || cfg.ModelProvider.APIKey == "" {
		return checkResult{name: "Model Provider", status: "error", message: "model_provider.endpoint/api_key not set"}
	}
	return checkResult{name: "Model Provider", status: "ok", message: fmt.Sprintf("endpoint configured: %s", cfg.ModelProvider.Endpoint)}
}

func checkOverlayPort(cfg *config.Settings) checkResult {
	addr := fmt.Sprintf("%s:%d", cfg.Overlay.Host, cfg.Overlay.Port)
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return checkResult{name: "Overlay Port", status: "ok", message: fmt.Sprintf("%s is free", addr)}
	}
	conn.Close()
	return checkResult{name: "Overlay Port", status: "warning", message: fmt.Sprintf("%s already in use; clovisd serve will rebind to an ephemeral port", addr)}
}

func checkCLIRunner(cfg *config.Settings) checkResult {
	if cfg.CLIRunner.RunnerPath == "" {
		return checkResult{name: "CLI Runner", status: "warning", message: "cli_runner.runner_path not set; cua_cli agent will be unavailable"}
	}
	if _, err := os.Stat(cfg.CLIRunner.RunnerPath); err != nil {
		return checkResult{name: "CLI Runner", status: "warning", message: fmt.Sprintf("not found: %s; cua_cli agent will be unavailable", cfg.CLIRunner.RunnerPath)}
	}
	return checkResult{name: "CLI Runner", status: "ok", message: fmt.Sprintf("found: %s", cfg.CLIRunner.RunnerPath)}
}
