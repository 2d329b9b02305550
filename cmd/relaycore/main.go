package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relaycore/relaycore/cmd/relaycore/internal/attach"
	"github.com/relaycore/relaycore/cmd/relaycore/internal/serve"
	"github.com/relaycore/relaycore/cmd/relaycore/internal/version"
)

func NewRelaycoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relaycore",
		Short:   "Real-time communication core: WebSocket hub, plugins, and terminal sessions",
		Example: "relaycore serve",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		attach.NewAttachCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRelaycoreCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
