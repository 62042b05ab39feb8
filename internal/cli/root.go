package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "qwz",
		Short: "CLI tool for the QuizWordz API",
		Long: `qwz is a CLI tool for hosting and playing QuizWordz sessions.

A host creates a session with a secret word and starts it once players have
joined. Players guess the word; the first to solve it wins. Use watch to
follow a session live.

Host and player IDs are generated on first use and remembered in the
identity file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Fill IDs not provided via flag/env
			if err := cfg.LoadIdentity(); err != nil {
				return fmt.Errorf("failed to load identity: %w", err)
			}

			switch cfg.Output {
			case "text", "json":
			default:
				return fmt.Errorf("unknown output format %q", cfg.Output)
			}

			client = NewClient(cfg.ServerURL, cfg.Timeout)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: QWZ_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.HostID, "host-id", cfg.HostID, "Host ID (env: QWZ_HOST_ID)")
	rootCmd.PersistentFlags().StringVar(&cfg.PlayerID, "player-id", cfg.PlayerID, "Player ID (env: QWZ_PLAYER_ID)")
	rootCmd.PersistentFlags().StringVar(&cfg.IdentityFile, "identity-file", cfg.IdentityFile, "Identity file path (env: QWZ_IDENTITY_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")

	// Add subcommands
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
