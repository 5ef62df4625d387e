package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/clovis-agent/clovis/internal/overlay/transport"
)

// NewBackgroundCmd creates `clovisd background list|stop`. Unlike every
// other subcommand, this one talks to an *already-running* `clovisd
// serve` process over its overlay HTTP server rather than constructing a
// Daemon itself: `background` and `serve` are separate OS processes, and
// there is no IPC between them. Day-to-day background process management
// during a
// conversation instead goes through the CLI Agent's own natural-language
// recognition, in-process, against the same running daemon.
func NewBackgroundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "background",
		Short: "Inspect or stop a running daemon's background processes",
	}
	cmd.AddCommand(newBackgroundListCmd())
	cmd.AddCommand(newBackgroundStopCmd())
	return cmd
}

func newBackgroundListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the running daemon's managed background processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromCommand(cmd)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s:%d/procs", settings.Overlay.Host, settings.Overlay.Port))
			if err != nil {
				return fmt.Errorf("reach clovisd: %w (is `clovisd serve` running?)", err)
			}
			defer resp.Body.Close()

			var procs []transport.ProcessInfo
			if err := json.NewDecoder(resp.Body).Decode(&procs); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}

			if len(procs) == 0 {
				fmt.Println("No background processes running.")
				return nil
			}
			for _, p := range procs {
				fmt.Printf("%-10s pid=%-8d %-20s %s\n", p.ID, p.PID, p.Uptime, p.Command)
			}
			return nil
		},
	}
}

func newBackgroundStopCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "stop [id]",
		Short: "Stop one or every managed background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromCommand(cmd)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			base := fmt.Sprintf("http://%s:%d/procs", settings.Overlay.Host, settings.Overlay.Port)

			if all {
				resp, err := client.Post(base+"/stopall", "application/json", nil)
				if err != nil {
					return fmt.Errorf("reach clovisd: %w (is `clovisd serve` running?)", err)
				}
				defer resp.Body.Close()
				var result struct {
					Stopped int `json:"stopped"`
				}
				json.NewDecoder(resp.Body).Decode(&result)
				fmt.Printf("Stopped %d background process(es).\n", result.Stopped)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("usage: clovisd background stop <id> (or --all)")
			}
			resp, err := client.Post(fmt.Sprintf("%s/%s/stop", base, args[0]), "application/json", nil)
			if err != nil {
				return fmt.Errorf("reach clovisd: %w (is `clovisd serve` running?)", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("stop %s: daemon reported status %d", args[0], resp.StatusCode)
			}
			fmt.Printf("Stopped %s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "stop every managed background process")
	return cmd
}
