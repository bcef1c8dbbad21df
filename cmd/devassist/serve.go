package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/proposal"
	"github.com/hupe1980/devassist/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	serverOpts := func(o *server.Options) {
		o.Addr = addr
		o.AuthToken = cfg.Server.AuthToken
		o.MaxBodyBytes = cfg.Server.MaxBodyBytes
		o.Logger = logger
	}

	var srv *server.Server
	if cfgErr := cfg.Validate(); cfgErr != nil {
		// keep serving so clients see the configuration error
		logger.Error("config.invalid", "error", cfgErr.Error())
		srv = server.New(nil, nil, nil, serverOpts, func(o *server.Options) { o.ConfigErr = cfgErr })
	} else {
		var closeStore func()
		srv, closeStore, err = buildServer(ctx, logger, serverOpts)
		if err != nil {
			return err
		}
		defer closeStore()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildServer(ctx context.Context, logger logging.Logger, serverOpts func(o *server.Options)) (*server.Server, func(), error) {
	m, err := buildModel(cfg)
	if err != nil {
		return nil, nil, err
	}
	gh, err := buildRepository(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	assistant, err := buildAssistant(cfg, m, gh, logger)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, sweep, err := proposalStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("proposal store: %w", err)
	}
	go sweepExpired(ctx, logger, sweep)

	gen := proposal.NewGenerator(m, store, func(o *proposal.GeneratorOptions) {
		o.Logger = logger
		o.MaxTokens = cfg.Proposal.MaxTokens
	})

	logger.Info("server.configured",
		"repo", gh.FullName(),
		"branch", gh.Branch(),
		"model", m.Info().Name,
		"max_iterations", assistant.MaxIterations(),
	)
	return server.New(assistant, gh, gen, serverOpts), closeStore, nil
}

func sweepExpired(ctx context.Context, logger logging.Logger, sweep func(context.Context) (int64, error)) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				logger.Warn("proposal.sweep.error", "error", err.Error())
				continue
			}
			if n > 0 {
				logger.Debug("proposal.sweep", "removed", n)
			}
		}
	}
}
