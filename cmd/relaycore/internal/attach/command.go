package attach

import (
	"github.com/spf13/cobra"
)

func NewAttachCommand() *cobra.Command {
	var (
		url   string
		token string
		shell string
	)

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Open an interactive terminal session on a relaycore server",
		Long: `Attach dials the server's WebSocket endpoint, creates a terminal
session sized to the local TTY, and wires the local terminal to it:
keystrokes are forwarded as session input, session output is rendered
as it arrives, and window resizes follow the local terminal.

Press Ctrl-] to detach. Detaching destroys the session.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return attachCmd(url, token, shell)
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "websocket endpoint to dial")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for authentication")
	cmd.Flags().StringVar(&shell, "shell", "", "shell to request (server default when empty)")

	return cmd
}
