// Command bot runs the site update notification bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"sitewatch/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Under systemd Type=notify this flips the unit to active; elsewhere
	// it is a no-op.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		fmt.Fprintln(os.Stderr, "sd_notify:", err)
	}
	defer daemon.SdNotify(false, daemon.SdNotifyStopping)

	return a.Run(ctx)
}
