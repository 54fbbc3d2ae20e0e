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

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auctionchess/internal/api"
	"auctionchess/internal/chess"
	"auctionchess/internal/config"
	"auctionchess/internal/lobby"
	"auctionchess/internal/logging"
	"auctionchess/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	registry := lobby.NewRegistry(chess.NewOracle(), cfg.Rules(), logger.Named("lobby"))
	server := api.NewServer(registry, st, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		HostColor:   cfg.HostColor,
		Logger:      logger.Named("api"),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting auction chess server",
			zap.String("addr", httpServer.Addr),
			zap.String("db", cfg.DBPath),
			zap.Int64("starting_balance", cfg.StartingBalance),
			zap.Stringer("all_in", cfg.AllIn),
			zap.Strings("cors", cfg.CORSOrigins),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		// Closed packets go out before the connections drop.
		closed := registry.Shutdown()
		server.Shutdown()
		logger.Info("sessions closed", zap.Int("count", closed))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			httpServer.Shutdown(shutdownCtx),
			st.Close(),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
