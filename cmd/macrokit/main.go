// macrokit runs one engine process: it owns the macro library, recording
// session, playback scheduling, and the connection to the macrokitd broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"macrokit/internal/bus"
	"macrokit/internal/config"
	"macrokit/internal/engine"
	"macrokit/internal/native"
	"macrokit/internal/store"
)

func main() {
	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.BrokerAddr, "broker", cfg.BrokerAddr, "macrokitd broker address (host:port)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer st.Close() //nolint:errcheck

	if err := store.ApplyMigrations(ctx, st.DB()); err != nil {
		fatal(err)
	}

	client := bus.Dial(cfg.BrokerAddr)
	defer client.Close() //nolint:errcheck

	// The sim engine keeps pacing without touching the OS input queue; a
	// platform build swaps in the real capture/injection engine and a global
	// hotkey registrar here.
	sim := native.NewSim()
	defer sim.Shutdown()

	eng := engine.New(cfg, engine.Deps{
		Native: sim,
		Bus:    client,
		Store:  st,
	})
	if err := eng.Start(ctx); err != nil {
		fatal(err)
	}
	defer eng.Close()

	log.Printf("macrokit: connected to broker at %s (instance %s)", cfg.BrokerAddr, eng.InstanceID())
	<-ctx.Done()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "macrokit: %v\n", err)
	os.Exit(1)
}
