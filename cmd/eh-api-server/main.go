package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/internal/server"
	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/catalog"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/config"
	"github.com/sf-yuzifu/eh-api-server/pkg/imageproxy"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})

	handler := buildHandler(cfg)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Starting catalog proxy server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	waitForShutdown(httpServer, logger)
}

// buildHandler wires the cache tiers, origin client and fetch components
// into the HTTP handler.
func buildHandler(cfg *config.Config) http.Handler {
	clientCfg := client.DefaultConfig()
	if cfg.Origin.UserAgent != "" {
		clientCfg.UserAgent = cfg.Origin.UserAgent
	}
	clientCfg.Timeout = cfg.Origin.Timeout
	clientCfg.MaxAttempts = cfg.Origin.MaxAttempts
	clientCfg.InitialBackoff = cfg.Origin.InitialBackoff
	clientCfg.MaxBackoff = cfg.Origin.MaxBackoff
	originClient := client.New(clientCfg)

	eh := parser.NewEH()

	lists := catalog.NewListFetcher(originClient, eh,
		cache.New[parser.ListPage]("listing", cfg.Cache.Listing.Capacity, cfg.Cache.Listing.TTL))
	cursors := catalog.NewCursorStore(
		cache.New[string]("cursor", cfg.Cache.Cursor.Capacity, cfg.Cache.Cursor.TTL), lists)
	details := catalog.NewDetailFetcher(originClient, eh,
		cache.New[parser.GalleryDetail]("detail", cfg.Cache.Detail.Capacity, cfg.Cache.Detail.TTL))
	resolver := catalog.NewImageResolver(originClient, eh,
		cache.New[[]catalog.ResolvedImage]("gallery", cfg.Cache.Gallery.Capacity, cfg.Cache.Gallery.TTL),
		catalog.ResolverConfig{
			MaxConcurrency: cfg.Resolver.MaxConcurrency,
			BatchTimeout:   cfg.Resolver.BatchTimeout,
			ThumbWidth:     cfg.Proxy.ThumbWidth,
			ThumbQuality:   cfg.Proxy.ThumbQuality,
		})
	images := imageproxy.New(originClient,
		cache.New[[]byte]("raw", cfg.Cache.Raw.Capacity, cfg.Cache.Raw.TTL),
		cache.New[imageproxy.ImageArtifact]("proxy", cfg.Cache.Proxy.Capacity, cfg.Cache.Proxy.TTL))

	return server.New(server.Config{
		Exhentai:       cfg.Origin.Exhentai,
		DefaultWidth:   cfg.Proxy.DefaultWidth,
		DefaultQuality: cfg.Proxy.DefaultQuality,
		ThumbWidth:     cfg.Proxy.ThumbWidth,
		ThumbQuality:   cfg.Proxy.ThumbQuality,
	}, lists, cursors, details, resolver, images).Handler()
}

func waitForShutdown(httpServer *http.Server, logger zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
	}
}
