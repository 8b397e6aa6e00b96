// Package main is the entry point for the DataManagerJob operator.
// It creates a Pod and ConfigMap for every new job and deletes them
// once the pod has finished.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jobop/internal/config"
	"jobop/internal/controller"
	"jobop/internal/kube"
	"jobop/internal/logger"
	"jobop/internal/observability"
	"jobop/internal/server"

	"go.opentelemetry.io/otel"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: jobop.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("Starting operator",
		"namespace", cfg.WatchNamespace,
		"pod_pre_delete_delay", cfg.PodPreDeleteDelay,
		"concurrency", cfg.HandlerConcurrency,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "jobop-operator", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logr.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Error("Failed to shutdown metrics", "error", err)
		}
	}()

	metrics, err := observability.NewController(otel.Meter("jobop-operator"))
	if err != nil {
		log.Fatalf("Failed to create instruments: %v", err)
	}

	restConfig, err := kube.RESTConfig(cfg.Kubeconfig, logr)
	if err != nil {
		log.Fatalf("Failed to load cluster config: %v", err)
	}
	clients, err := kube.NewClients(restConfig)
	if err != nil {
		log.Fatalf("Failed to create cluster clients: %v", err)
	}

	recorder, stopRecorder := controller.NewEventRecorder(clients.Kubernetes, logr)
	defer stopRecorder()

	ctrl, err := controller.New(clients.Kubernetes, clients.Dynamic, cfg, logr, metrics, recorder)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	// Probe and metrics server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := server.New(addr, ctrl.Ready, metricsHandler, logr)
	go func() {
		if err := srv.Run(ctx); err != nil {
			logr.Error("Probe server stopped", "error", err)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logr.Info("Shutting down operator...")
		cancel()
		<-done
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logr.Error("Controller stopped", "error", err)
			cancel()
			os.Exit(1)
		}
	}
	logr.Info("Operator exited properly")
}
