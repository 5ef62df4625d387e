package cli

import (
	"context"

	"github.com/getlantern/systray"
	"github.com/spf13/cobra"

	"github.com/clovis-agent/clovis/internal/daemon"
)

// NewTrayCmd creates the `clovisd tray` command: the same daemon as
// `serve`, with a system tray presence for stopping the current task or
// quitting without a terminal.
func NewTrayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run the orchestrator daemon with a system tray icon",
		Long: `tray runs the same daemon as serve, plus a tray menu with
"Stop current task" and "Quit" items. Intended for desktop sessions where
clovisd is launched outside a terminal.`,
		RunE: runTray,
	}
}

func runTray(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromCommand(cmd)
	if err != nil {
		return err
	}

	d, err := daemon.New(settings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	errCh := make(chan error, 1)

	onReady := func() {
		systray.SetTitle("Clovis")
		systray.SetTooltip("Clovis orchestrator")
		stopItem := systray.AddMenuItem("Stop current task", "Cancel the running task and queued overlay actions")
		systray.AddSeparator()
		quitItem := systray.AddMenuItem("Quit", "Shut down the orchestrator")

		go func() {
			errCh <- d.Run(ctx)
			systray.Quit()
		}()

		go func() {
			for {
				select {
				case <-stopItem.ClickedCh:
					d.StopAll()
				case <-quitItem.ClickedCh:
					cancel()
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// systray.Run blocks the calling goroutine until Quit; the daemon is
	// unwound by cancelling its context afterwards.
	systray.Run(onReady, func() { cancel() })

	return <-errCh
}
