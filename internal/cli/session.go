package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/quizwordz/internal/api/request"
	"github.com/mcoot/quizwordz/internal/api/response"
)

func sessionPath(id string, parts ...string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session commands",
	}

	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionGetCmd())
	cmd.AddCommand(newSessionJoinableCmd())
	cmd.AddCommand(newSessionJoinCmd())
	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionGuessCmd())
	cmd.AddCommand(newSessionEndCmd())
	cmd.AddCommand(newSessionLeaderboardCmd())

	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var word string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session as host",
		RunE: func(cmd *cobra.Command, args []string) error {
			hostID, err := cfg.EnsureHostID()
			if err != nil {
				return fmt.Errorf("failed to save identity: %w", err)
			}

			req := request.CreateSessionRequest{HostID: hostID, SecretWord: word}
			var result response.Session

			if err := client.Post(cmd.Context(), "/api/v1/sessions", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&word, "word", "", "Secret 5-letter word (required)")
	_ = cmd.MarkFlagRequired("word")

	return cmd
}

func newSessionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Session

			if err := client.Get(cmd.Context(), sessionPath(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSessionJoinableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "joinable <id>",
		Short: "Check that a session can be joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Get(cmd.Context(), sessionPath(args[0], "joinable"), nil); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage(fmt.Sprintf("Session %s is open", args[0]))
			return nil
		},
	}
}

func newSessionJoinCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "Join a waiting session as a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.EnsurePlayerID()
			if err != nil {
				return fmt.Errorf("failed to save identity: %w", err)
			}

			req := request.JoinRequest{PlayerID: playerID, DisplayName: name}
			var result response.JoinResponse

			if err := client.Post(cmd.Context(), sessionPath(args[0], "players"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start the session (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.HostRequest{HostID: cfg.HostID}
			var result response.Session

			if err := client.Post(cmd.Context(), sessionPath(args[0], "start"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSessionGuessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guess <id> <word>",
		Short: "Submit a guess",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.PlayerID == "" {
				return fmt.Errorf("no player ID: join the session first or set --player-id")
			}

			req := request.GuessRequest{PlayerID: cfg.PlayerID, Guess: args[1]}
			var result response.GuessResponse

			if err := client.Post(cmd.Context(), sessionPath(args[0], "guesses"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End the session (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.HostRequest{HostID: cfg.HostID}
			var result response.Session

			if err := client.Post(cmd.Context(), sessionPath(args[0], "end"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSessionLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard <id>",
		Short: "Show the session leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.LeaderboardResponse

			if err := client.Get(cmd.Context(), sessionPath(args[0], "leaderboard"), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
