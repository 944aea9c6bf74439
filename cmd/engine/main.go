package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"tributary/internal/engine"
	"tributary/internal/logging"
	_ "tributary/offsets/memory"
	_ "tributary/sink/kafka"
	_ "tributary/sink/stdout"
	_ "tributary/source/kafka"
)

func main() {
	configPath := flag.String("config", "engine.yml", "engine config YAML")
	deployPath := flag.String("deployment", "deployment.yml", "deployment YAML")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, engine.Options{
		ConfigPath:     *configPath,
		DeploymentPath: *deployPath,
	})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()

	if err := e.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("engine: %v", err)
	}
}
