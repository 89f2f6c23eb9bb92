package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcwatch/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file (yaml or json)")
	flag.Parse()

	a, err := app.New(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcwatch:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "mcwatch:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "mcwatch: shutdown:", err)
		os.Exit(1)
	}
}
