package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/spf13/cobra"
)

func newCreateCmd(cfg *Config) *cobra.Command {
	var (
		nickname string
		secret   string
		game     models.GameConfig
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and join it as owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := cfg.gameClient().CreateRoom(cmd.Context(), nickname, secret, game)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "room:   %s\n", created.Room.Code)
			fmt.Fprintf(out, "player: %s\n", created.Player.ID)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&nickname, "nickname", "n", "", "owner nickname")
	fs.StringVar(&secret, "secret", "", "join secret, empty for an open room")
	fs.IntVar(&game.MinPlayers, "min-players", 0, "players needed to start (0 uses the server default)")
	fs.IntVar(&game.MaxPlayers, "max-players", 0, "room capacity (0 uses the server default)")
	fs.IntVar(&game.TotalRounds, "rounds", 0, "round count (0 derives it from the player count)")
	fs.IntVar(&game.AnswerSec, "answer-sec", 0, "answer phase length in seconds")
	fs.IntVar(&game.VoteSec, "vote-sec", 0, "vote phase length in seconds")
	_ = cmd.MarkFlagRequired("nickname")
	return cmd
}

func newJoinCmd(cfg *Config) *cobra.Command {
	var nickname, secret string
	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cfg.gameClient().JoinRoom(cmd.Context(), args[0], secret, nickname)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "player: %s\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "nickname", "n", "", "nickname")
	cmd.Flags().StringVar(&secret, "secret", "", "join secret")
	_ = cmd.MarkFlagRequired("nickname")
	return cmd
}

func newSnapshotCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot CODE",
		Short: "Print the room as the player sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			snap, err := cfg.gameClient().Snapshot(cmd.Context(), args[0], playerID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func newReadyCmd(cfg *Config) *cobra.Command {
	var unready bool
	cmd := &cobra.Command{
		Use:   "ready CODE",
		Short: "Mark yourself ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			return cfg.gameClient().SetReady(cmd.Context(), args[0], playerID, !unready)
		},
	}
	cmd.Flags().BoolVar(&unready, "unready", false, "clear the ready flag instead")
	return cmd
}

// playerAction builds a command whose only input is the room code.
func playerAction(cfg *Config, use, short string, fn func(cmd *cobra.Command, code, playerID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CODE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			return fn(cmd, args[0], playerID)
		},
	}
}

func newStartCmd(cfg *Config) *cobra.Command {
	return playerAction(cfg, "start", "Start the game (owner only)", func(cmd *cobra.Command, code, playerID string) error {
		return cfg.gameClient().StartGame(cmd.Context(), code, playerID)
	})
}

func newLeaveCmd(cfg *Config) *cobra.Command {
	return playerAction(cfg, "leave", "Leave the room", func(cmd *cobra.Command, code, playerID string) error {
		return cfg.gameClient().LeaveRoom(cmd.Context(), code, playerID)
	})
}

func newDisbandCmd(cfg *Config) *cobra.Command {
	return playerAction(cfg, "disband", "Close the room for everyone (owner only)", func(cmd *cobra.Command, code, playerID string) error {
		return cfg.gameClient().DisbandRoom(cmd.Context(), code, playerID)
	})
}

func newKickCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "kick CODE PLAYER",
		Short: "Remove a player (owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			return cfg.gameClient().KickPlayer(cmd.Context(), args[0], playerID, args[1])
		},
	}
}

func newResponderCmd(cfg *Config) *cobra.Command {
	var (
		instruction string
		profile     string
		lock        bool
	)
	cmd := &cobra.Command{
		Use:   "responder CODE",
		Short: "Configure how the generator answers for you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			return cfg.gameClient().ConfigureResponder(cmd.Context(), args[0], playerID, instruction, profile, lock)
		},
	}
	cmd.Flags().StringVarP(&instruction, "instruction", "i", "", "style instruction for generated answers")
	cmd.Flags().StringVar(&profile, "profile", "", "generator profile id")
	cmd.Flags().BoolVar(&lock, "lock", false, "lock the configuration")
	return cmd
}

func newAskCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ask CODE QUESTION...",
		Short: "Ask this round's question (interrogator only)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			return cfg.gameClient().SubmitQuestion(cmd.Context(), args[0], playerID, strings.Join(args[1:], " "))
		},
	}
}

func newAnswerCmd(cfg *Config) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "answer CODE [TEXT...]",
		Short: "Answer this round's question (subject only)",
		Long:  "Answer in your own words, or pass --origin generated to delegate to the generator.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			o, err := models.ParseAnswerOrigin(origin)
			if err != nil {
				return err
			}
			return cfg.gameClient().SubmitAnswer(cmd.Context(), args[0], playerID, o, strings.Join(args[1:], " "))
		},
	}
	cmd.Flags().StringVar(&origin, "origin", string(models.OriginSelf), "self or generated")
	return cmd
}

func newVoteCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "vote CODE CHOICE",
		Short: "Vote self, generated or abstain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			choice, err := models.ParseVoteChoice(args[1])
			if err != nil {
				return err
			}
			return cfg.gameClient().SubmitVote(cmd.Context(), args[0], playerID, choice)
		},
	}
}

func newProfilesCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List generator profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := cfg.gameClient().Profiles(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
