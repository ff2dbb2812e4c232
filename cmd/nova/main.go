// Nova - always-listening voice assistant with a pinch cursor and dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-nova/internal/config"
	"github.com/teslashibe/go-nova/internal/log"
	"github.com/teslashibe/go-nova/pkg/nova"
	"github.com/teslashibe/go-nova/pkg/wake"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)
	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := nova.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 2
	}

	if err := app.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		app.Shutdown()
		return 1
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		return 1
	}
	return 0
}

// loadConfig layers defaults, the config file, environment and flags.
func loadConfig() (config.Config, error) {
	path := flag.String("config", "", "Path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging and verbose chat notices")
	port := flag.Int("port", 0, "Dashboard port (overrides web.addr)")
	runtime := flag.String("runtime", "", "Runtime name; \""+wake.RuntimeHostShell+"\" forces chunked wake detection")
	noGesture := flag.Bool("no-gesture", false, "Disable the webcam pinch cursor")
	flag.Parse()

	cfg := config.Default()
	if *path != "" {
		loaded, err := config.Load(*path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if *debug {
		cfg.LogLevel = "debug"
		cfg.Chat.Verbose = true
	}
	if *port > 0 {
		cfg.Web.Addr = fmt.Sprintf(":%d", *port)
	}
	if *runtime != "" {
		cfg.Runtime = *runtime
	}
	if *noGesture {
		cfg.Gesture.Enabled = false
	}
	return cfg, cfg.Validate()
}
