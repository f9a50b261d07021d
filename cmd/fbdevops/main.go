package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fbdevops/internal/cli"
	"fbdevops/internal/config"
	"fbdevops/internal/runner"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.New(config.Load(), runner.New()).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ "+err.Error())
	}
	os.Exit(runner.ExitCode(err))
}
