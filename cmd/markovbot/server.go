package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/markovbot/pkg/markov"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

type Server struct {
	config    *Config
	logger    *slog.Logger
	store     *markov.Store
	metrics   *Metrics
	authAPI   *AuthAPI
	markovAPI *MarkovAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

func NewServer(config *Config, logger *slog.Logger, store *markov.Store, actionChan chan<- string) *Server {
	metrics := NewMetrics()
	metrics.ObserveStore(store)

	server := &Server{
		config:    config,
		logger:    logger,
		store:     store,
		metrics:   metrics,
		authAPI:   NewAuthAPI(config.Server.APIKeys, logger),
		markovAPI: NewMarkovAPI(store, config, metrics, logger),
		serverAPI: NewServerAPI(config, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.markovAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Every api route passes through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so probes can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)
	if config.Server.MetricsEnabled {
		server.apiMux.Handle("/metrics", metrics.Handler())
	}

	return server
}

// ServeHTTP lets the server be mounted directly, which the handler tests rely on.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.apiMux.ServeHTTP(w, r)
}

// runServer hosts the API until ctx is cancelled or an action arrives on
// actionChan, then shuts down gracefully and persists the store. It returns
// the action that stopped it.
func runServer(ctx context.Context, config *Config, logger *slog.Logger, store *markov.Store, actionChan chan string) (string, error) {
	server := NewServer(config, logger, store, actionChan)
	httpServer := &http.Server{
		Addr:              config.Server.ApiAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Drop an action left over from the previous cycle.
	select {
	case stale := <-actionChan:
		logger.Debug("Discarding stale server action", "action", stale)
	default:
	}

	action := actionShutdown
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting markovbot api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case action = <-actionChan: // Block here until API or OS signal sends an action.
		}

		logger.Info("Stopping server for " + action + "...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Api server shutdown failed", "error", err)
		}
		logger.Info("HTTP server stopped.")

		if err := saveStore(shutdownCtx, store, config.Server.StatePath); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		logger.Info("State saved", "path", config.Server.StatePath)
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return action, nil
}
