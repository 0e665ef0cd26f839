package main

import (
	"flag"
	"log"
	"os"

	"SynthFeed/internal/di"
	"SynthFeed/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("env=%s backend=%s snapshots=%s symbols=%v",
		cfg.Environment, cfg.Backend.Type, cfg.Snapshot.Backend, cfg.Simulator.Symbols)

	// Run blocks until SIGINT/SIGTERM and returns after the final snapshot.
	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
