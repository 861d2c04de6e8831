// File: cmd/kestrel/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrelhq/kestrel/cmd"
)

func main() {
	// Interrupt signals cancel the context so in-flight work unwinds
	// gracefully instead of being killed mid-append.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
