// Command turingctl plays a room from the terminal.
//
//	turingctl create --nickname ada
//	export TURINGCTL_PLAYER=<id>
//	turingctl watch ABC234
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(newRootCmd(&Config{}).ExecuteContext(ctx))
}
