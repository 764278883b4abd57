package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"govstats/internal/config"
	transporthttp "govstats/internal/transport/http"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rankings API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ListenAddr = addr
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides GOVSTATS_LISTEN_ADDR)")

	return cmd
}

func runServe(cfg config.Config) error {
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, err := a.cache.Hydrate(context.Background()); err != nil {
		log.Printf("hydrate cache: %v", err)
	} else if ok {
		log.Printf("cache hydrated from archive")
	}

	gin.SetMode(gin.ReleaseMode)
	server := transporthttp.NewServer(a.rankings, a.cache, log.Default())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("govstats API listening on %s (cache ttl %s)", cfg.ListenAddr, cfg.CacheTTL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("signal received: %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}
