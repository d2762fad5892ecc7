package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api"
	"github.com/lzjever/mbos-dash/internal/browser"
	"github.com/lzjever/mbos-dash/internal/creator"
	"github.com/lzjever/mbos-dash/internal/handshake"
	"github.com/lzjever/mbos-dash/internal/hosturl"
	"github.com/lzjever/mbos-dash/internal/integrations"
	"github.com/lzjever/mbos-dash/internal/logrelay"
	"github.com/lzjever/mbos-dash/internal/observability"
	"github.com/lzjever/mbos-dash/internal/protocol"
	"github.com/lzjever/mbos-dash/internal/wsauth"
)

func main() {
	var cfg api.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	host, err := hosturl.Parse(cfg.HostURL)
	if err != nil {
		log.Fatal("invalid host url", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Remote service channel
	remote := protocol.NewClient(protocol.Config{
		Endpoint:    host.ServerEndpoint().String(),
		Token:       cfg.Token,
		DialTimeout: cfg.DialTimeout,
	}, log.Named("rpc"))
	go remote.Run(ctx)

	boot, err := wsauth.New(host, cfg.Token, cfg.RequestTimeout, log.Named("wsauth"))
	if err != nil {
		log.Fatal("auth bootstrap setup failed", zap.Error(err))
	}

	returnTo, err := cfg.ReturnTo()
	if err != nil {
		log.Fatal("invalid public url", zap.Error(err))
	}

	launcher := browser.NewLauncher()
	launcher.Fallback = os.Stderr
	receiver := handshake.NewReceiver(log.Named("handshake"))
	authorizer := handshake.NewAuthorizer(host, launcher.Opener(), receiver, handshake.Config{
		Timeout:       cfg.HandshakeTimeout,
		AllowedOrigin: cfg.AllowedOrigin,
		ReturnTo:      returnTo,
	}, log.Named("handshake"))

	relay := logrelay.New(remote, log.Named("logs"))
	defer relay.Close()

	apiHandler := api.NewAPI(api.Deps{
		Remote:         remote,
		Bootstrap:      boot,
		Receiver:       receiver,
		Authorizer:     authorizer,
		Creator:        creator.New(remote, log.Named("creator")),
		Integrations:   integrations.New(host, remote, authorizer, boot.Client(), log.Named("integrations")),
		Logs:           relay,
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	defer apiHandler.Close()

	// Websocket streams and handshakes outlive any fixed write deadline.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("API server starting", zap.String("addr", cfg.HTTPAddr), zap.String("host", host.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("API server stopped")
}
