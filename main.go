package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvcoi/youtube2mediawiki/internal/cli"
	"github.com/lvcoi/youtube2mediawiki/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	transport.CloseIdleConnections()
	os.Exit(code)
}
