// Command fiberkb runs the fiber knowledge base: MCP tool server, chat, imports and indexing.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}
