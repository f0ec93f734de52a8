package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/llehouerou/wavesbot/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	application := fx.New(app.Options)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, stop := context.WithTimeout(context.Background(), application.StopTimeout())
	defer stop()
	return application.Stop(stopCtx)
}
