// vaultctl inspects and operates the local session and vault store; run with
// go run ./cmd/vaultctl <group> <command> [flags].
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcarweb/repuestospro-sub005/internal/app"
	"github.com/jcarweb/repuestospro-sub005/internal/config"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "app:", err)
		os.Exit(1)
	}
	runErr := run(ctx, a, os.Args[1:], os.Stdin, os.Stdout)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "vaultctl:", runErr)
		os.Exit(1)
	}
}
