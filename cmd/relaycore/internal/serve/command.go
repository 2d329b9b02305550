package serve

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/relaycore/relaycore/internal/config"
)

func NewServeCommand() *cobra.Command {
	var (
		port           string
		authSecret     string
		allowedOrigins []string
		disablePTY     bool
		logLevel       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relaycore server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			return serveCmd(func(cfg *config.Config) error {
				if flags.Changed("port") {
					cfg.Port = normalizeAddr(port)
				}
				if flags.Changed("auth-secret") {
					cfg.AuthSecret = authSecret
				}
				if flags.Changed("allowed-origins") {
					cfg.AllowedOrigins = allowedOrigins
				}
				if flags.Changed("disable-pty") {
					cfg.Terminal.DisablePTY = disablePTY
				}
				if flags.Changed("log-level") {
					var level slog.Level
					if err := level.UnmarshalText([]byte(logLevel)); err != nil {
						return fmt.Errorf("invalid log level %q: %w", logLevel, err)
					}
					cfg.LogLevel = level
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", `listen address, ":8080" or plain "8080"`)
	cmd.Flags().StringVar(&authSecret, "auth-secret", "", "HS256 signing secret for bearer tokens")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, `allowed websocket origins ("*" accepts any)`)
	cmd.Flags().BoolVar(&disablePTY, "disable-pty", false, "force terminal sessions onto the simulated shell")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")

	return cmd
}
