// Command clovisd is the entry point for the Clovis orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/clovis-agent/clovis/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
