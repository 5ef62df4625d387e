package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clovis-agent/clovis/internal/daemon"
)

// NewServeCmd creates the `clovisd serve` command: build the full object
// graph and run it until interrupted.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Clovis orchestrator daemon",
		Long: `serve starts the overlay WebSocket transport, the Draw Action
Queue, the Router, and every configured agent, then blocks until
interrupted (Ctrl-C or SIGTERM).`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&host, "host", "", "overlay bind host (overrides settings)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "overlay bind port (overrides settings)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromCommand(cmd)
	if err != nil {
		return err
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		settings.Overlay.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		settings.Overlay.Port = port
	}

	d, err := daemon.New(settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
