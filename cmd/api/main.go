package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/metinatakli/cinex-booking/internal/app"
	"github.com/metinatakli/cinex-booking/internal/config"
	"github.com/metinatakli/cinex-booking/internal/logger"
	"github.com/metinatakli/cinex-booking/internal/vcs"
	"go.uber.org/zap"
)

var (
	version = vcs.Version()
)

func main() {
	configPath := flag.String("config", "", "Path to an env file with settings (environment variables take precedence)")
	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogPath, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := app.Run(cfg, log); err != nil {
		log.Error("application stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
