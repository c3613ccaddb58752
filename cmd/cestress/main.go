// Command cestress runs stress scenarios against completion events and prints
// a summary of the metrics they record.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dogmatiq/ferrite"
)

func main() {
	ferrite.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := newRootCommand(defaultsFromEnv())

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cestress:", err)
		os.Exit(1)
	}
}
