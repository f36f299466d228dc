package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/labportal/internal/access"
	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/server"
	"github.com/abduss/labportal/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guarded portal and session API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, withSessionMetrics(session.NewMetrics(prometheus.DefaultRegisterer)))
	if err != nil {
		return err
	}
	defer a.Close()

	a.session.Start(ctx)
	if err := a.session.Init(ctx); err != nil {
		if auth.KindOf(err) == auth.KindNetwork {
			a.logger.Warn("identity service unreachable, keeping stored session", zap.Error(err))
		} else {
			a.logger.Info("stored session discarded", zap.String("error_kind", auth.KindOf(err).String()))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Dependencies{
		Config:  a.cfg,
		Logger:  a.logger,
		Tokens:  a.tokens,
		Session: a.session,
		Gate:    access.NewGate(a.cfg.Access),
	})

	httpServer := &http.Server{
		Addr:         a.cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("lab portal listening",
			zap.String("address", a.cfg.Server.Address()),
			zap.String("token_backend", a.cfg.TokenStore.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("http server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.logger.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", zap.Error(err))
		return err
	}
	return nil
}
