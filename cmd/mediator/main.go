package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/config"
	"github.com/affinidi-community/didcomm-mediator/internal/didcrypto"
	"github.com/affinidi-community/didcomm-mediator/internal/logging"
	"github.com/affinidi-community/didcomm-mediator/internal/mediator"
	"github.com/affinidi-community/didcomm-mediator/internal/metrics"
	"github.com/affinidi-community/didcomm-mediator/internal/server"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var tlsConfig *tls.Config
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading TLS certificate: %v\n", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   cfg.TLS.MinTLSVersion(),
		}
		logger.Info("TLS configured",
			slog.String("cert", cfg.TLS.CertFile),
			slog.String("min_version", cfg.TLS.MinVersion))
	}

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	// The DIDComm crypto stack and DID-resolver client are external
	// collaborators per the Non-goals; didcrypto supplies a
	// plaintext-JSON reference implementation so the mediator can run
	// standalone. Swap these two values for a real implementation of
	// mediator.Unpacker / mediator.DIDResolver in a production deployment.
	unpacker := didcrypto.New()
	resolver := didcrypto.NewStaticResolver(nil)

	stack, err := mediator.NewStack(mediator.StackConfig{
		Config:    cfg,
		Resolver:  resolver,
		Unpacker:  unpacker,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building mediator stack: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("error closing mediator stack", "error", err)
		}
	}()

	srv, err := server.New(server.Config{
		Deps: server.Deps{
			Config:          &cfg,
			Processor:       stack.Processor,
			Dispatcher:      stack.Dispatcher,
			Unpacker:        unpacker,
			Sessions:        stack.Sessions,
			Accounts:        stack.Accounts,
			Mailboxes:       stack.Mailboxes,
			Bus:             stack.Bus,
			OOB:             stack.OOB,
			Collector:       collector,
			MediatorDIDHash: account.NormalizeDID(cfg.MediatorDID),
		},
		TLSConfig: tlsConfig,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating server: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		logger.Info("metrics server enabled", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	logger.Info("starting mediator", "hostname", cfg.Hostname, "listen", cfg.Listen)

	errCh := make(chan error, 2)
	go func() { errCh <- stack.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && err != context.Canceled && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		fmt.Fprintf(os.Stderr, "mediator error: %v\n", firstErr)
		os.Exit(1)
	}

	logger.Info("mediator stopped")
}
