package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spectra-gallery/spectra/internal/config"
	"github.com/spectra-gallery/spectra/internal/devapi"
	"github.com/spectra-gallery/spectra/logging"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		// If a second signal arrives, force exit immediately.
		<-sigCh
		log.Println("second interrupt received, forcing shutdown")
		os.Exit(1)
	}()
	defer func() {
		signal.Stop(sigCh)
		cancel()
	}()

	configPath := flag.String("config", "", "path to a JSON config file")
	listen := flag.String("listen", "", "address to serve the dev API (defaults to config devapi.addr)")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *listen != "" {
		cfg.DevAPI.Addr = *listen
	}

	level, err := logging.ParseLevel(cfg.Client.LogLevel)
	if err != nil {
		level = logging.INFO
	}
	if level > logging.INFO {
		level = logging.INFO
	}
	writers := []io.Writer{os.Stdout}
	if cfg.DevAPI.LogDir != "" {
		logFile, err := logging.OpenRotatingFile(cfg.DevAPI.LogDir, "devapi.log", 10<<20, 5)
		if err != nil {
			log.Fatalf("log file: %v", err)
		}
		defer logFile.Close()
		writers = append(writers, logFile)
	}
	logger := logging.New(level, writers...)

	if err := devapi.Run(ctx, cfg.DevAPI, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("devapi", "dev API stopped", err, nil)
		os.Exit(1)
	}
}
