// fcgisock - serves the FastCGI listening socket inherited from a
// process manager.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fcgisock/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fcgisock: %v\n", err)
		os.Exit(1)
	}
}
