package main

import (
	"errors"
	"fmt"

	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/transport"
	"github.com/spf13/cobra"
)

func newWatchCmd(cfg *Config) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch CODE",
		Short: "Stream room events until the room closes",
		Long: "Prints one line per event: #<seq> <type> <payload>. The stream reconnects " +
			"on its own and starts again from a fresh snapshot. It stops when the server " +
			"refuses the stream, for example once the room is gone.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := cfg.requirePlayer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stream := make(chan events.Event)
			rejected := make(chan error, 1)
			done := make(chan struct{})
			defer close(done)

			client := transport.NewClient(transport.ClientConfig{
				URL: cfg.gameClient().StreamURL(args[0], playerID),
				OnEvent: func(ev events.Event) {
					select {
					case stream <- ev:
					case <-done:
					}
				},
				OnState: func(st transport.State) {
					cfg.log.Debug().Str("state", string(st)).Str("room_code", args[0]).Msg("stream state")
				},
				OnDisconnect: func(err error) {
					cfg.log.Debug().Err(err).Str("room_code", args[0]).Msg("stream disconnected")
					if errors.Is(err, transport.ErrStreamRejected) {
						select {
						case rejected <- err:
						default:
						}
					}
				},
			})
			if err := client.Start(); err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			seen := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-rejected:
					return fmt.Errorf("watch %s: %w", args[0], err)
				case ev := <-stream:
					fmt.Fprintf(out, "#%d %s %s\n", ev.Seq, ev.Type, ev.Data)
					seen++
					if ev.Type == events.TypeRoomClosed || ev.Type == events.TypeGameOver {
						return nil
					}
					if count > 0 && seen >= count {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 0, "exit after this many events (0 watches until the room closes)")
	return cmd
}
