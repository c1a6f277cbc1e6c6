package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/ent0n29/iris/internal/app"
	"github.com/ent0n29/iris/internal/logging"
)

var (
	serveBind    string
	serveOpenUI  bool
	serveConnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address (overrides APP_BIND_ADDR)")
	serveCmd.Flags().BoolVar(&serveOpenUI, "open", false, "open the web UI in the default browser")
	serveCmd.Flags().BoolVar(&serveConnect, "connect", false, "start a live session immediately")
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveBind != "" {
		cfg.BindAddr = serveBind
	}
	log := logging.L("serve")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	if serveOpenUI {
		if err := open.Run(uiURL(cfg.BindAddr)); err != nil {
			log.Warn().Err(err).Msg("open browser failed")
		}
	}
	if serveConnect {
		if err := built.Engine.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("initial connect failed")
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err, ok := <-listenErr:
		if ok && err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// uiURL turns a listen address into a browsable URL.
func uiURL(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind + "/ui/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/ui/"
}
