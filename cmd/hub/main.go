package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collab-hub/auth"
	"collab-hub/internal"
	"collab-hub/moderation"
	"collab-hub/observability"
	"collab-hub/repositories"
	"collab-hub/runtime"
	"collab-hub/runtime/workers"
	"collab-hub/sink"
	"collab-hub/transport"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "collab.hub"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before main exits.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.Load(".env")
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Moderation
	moderator, err := newModerator(config, log)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 3. Hub
	monitor := observability.NewMonitoringManager(log)
	issuer := auth.NewTokenIssuer(config.JwtSecret, config.JwtIssuer)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	hub := runtime.NewHub(log, sup, auth.NewJWTAuthenticator(issuer), moderator, monitor, config.HubOptions())

	// 4. Optional datastore relay (BadgerDB)
	if config.BadgerFilepath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		hub.AddSinks(sink.NewDiskSink(repositories.NewEnvelopeRepository(db, log), log))
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		_ = hub.Start(ctx)
	}()

	// 6. gRPC health server
	grpcListener, err := net.Listen("tcp", config.GrpcAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.GrpcAddress(), err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// 7. HTTP server
	httpServer := &http.Server{
		Addr: config.HTTPAddress(),
		Handler: transport.NewServer(log, hub, monitor, transport.ServerOptions{
			WriteTimeout:   config.WriteTimeout,
			PingInterval:   config.PingInterval,
			MaxFrameBytes:  int64(config.MaxFrameBytes),
			AllowedOrigins: config.Origins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting gRPC health server", "address", config.GrpcAddress())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting hub", "address", config.HTTPAddress(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case serveErr = <-errChan:
		log.Error("Server failed, shutting down", "error", serveErr)
	}

	// 9. Final Cleanup
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	hub.Stop()
	grpcServer.GracefulStop()
	log.Info("Program stopped cleanly")

	return serveErr
}

func newModerator(config internal.Config, log *slog.Logger) (*moderation.Moderator, error) {
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	var dictionary moderation.Dictionary
	if config.CensoredWordsDir != "" {
		dictionary, err = moderation.LoadDictionary(os.DirFS(config.CensoredWordsDir))
	} else {
		dictionary, err = moderation.DefaultDictionary()
	}
	if err != nil {
		return nil, err
	}
	log.Info("Moderation dictionary loaded", "words", len(dictionary.Words), "languages", dictionary.Languages)
	return moderation.NewModerator(dictionary.Words, char, log)
}
