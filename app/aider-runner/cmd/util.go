package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/go-github/v72/github"

	"github.com/cchalm/aider-runner/internal/config"
	githubpkg "github.com/cchalm/aider-runner/internal/github"
	"github.com/cchalm/aider-runner/internal/telemetry"
)

// telemetryShutdownTimeout bounds how long buffered spans are flushed for on exit
const telemetryShutdownTimeout = 10 * time.Second

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Println("Interrupt signal detected, stopping the editing tool...")
		cancel()
		<-interrupt
		log.Fatal("Forcing shutdown")
	}()

	return ctx
}

func createGithubClient(ctx context.Context, token string) *github.Client {
	return githubpkg.NewClient(ctx, token)
}

func createTelemetryProvider(ctx context.Context, cfg config.Config, insecure bool) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.TelemetryConfig{
		Enabled:      cfg.TelemetryEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     insecure,
		Version:      versionInfo.Version,
	}
	return telemetry.NewProvider(ctx, telemetryConfig)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownTelemetry flushes spans on a fresh context so that an interrupted run still exports its trace
func shutdownTelemetry(provider shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
}
