package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"kaia/internal/agent"
	"kaia/internal/config"
	"kaia/internal/logging"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	addr := cli.StringP("addr", "a", "", "Listen address (loopback only)")
	cli.Parse()

	logging.Setup(os.Stdout, *logLevel)

	if err := config.LoadEnv(*envFile); err != nil {
		log.Error("Failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if *addr != "" {
		cfg.Agent.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := agent.New(agent.Config{Addr: cfg.Agent.Addr})
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("Agent stopped", "err", err)
		os.Exit(1)
	}
}
