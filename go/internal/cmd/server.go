package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func runServe(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	database, err := setupDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := setupServices(config, database, reg)
	if err != nil {
		return err
	}
	defer services.Publisher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recovered, err := services.Scheduler.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover live matches: %w", err)
	}

	server := setupServer(config, services, reg)
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Int("recovered_matches", recovered).
			Msg("match clock server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdown(server, services.Scheduler, config.Server.ShutdownTimeout, config.Server.DrainTimeout)

	log.Info().Msg("match clock server stopped")
	return nil
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the HTTP server, then drains pending checkpoints. The drain
// gets its own timeout so a slow server shutdown cannot starve it.
func shutdown(server *http.Server, sched drainer, serverTimeout, drainTimeout time.Duration) {
	serverCtx, cancel := context.WithTimeout(context.Background(), serverTimeout)
	defer cancel()
	if err := server.Shutdown(serverCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := sched.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
}

func setupServer(config *Config, services *Services, reg *prometheus.Registry) *http.Server {
	router := mux.NewRouter()

	// Register gateway and control routes
	services.Gateway.RegisterRoutes(router)

	setupHealthCheck(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Setup HTTP/2 server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: h2c.NewHandler(services.Gateway.Wrap(router), &http2.Server{}),
	}
	// open viewer streams never go idle, so Shutdown has to end them
	server.RegisterOnShutdown(services.Gateway.Close)
	return server
}

func setupHealthCheck(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
