// Package main is the entry point for the web service application.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cargodocs/cargodocs/cmd/web-service/daemon"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		os.Exit(1)
	}

	stop := handleSignals(a)
	defer stop()

	if err := a.Run(); err != nil {
		slog.Error(err.Error())
		if a.UsageError() {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// handleSignals quits the daemon on SIGINT and SIGTERM. SIGHUP dumps
// goroutine stacks and quits only when the dump itself asks for it.
func handleSignals(a *daemon.App) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range sigs {
			if sig == syscall.SIGHUP && !a.Hup() {
				continue
			}
			a.Quit()
			return
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(sigs)
		<-done
	}
}
