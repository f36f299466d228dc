package main

import (
	"context"
	"fmt"

	"github.com/abduss/labportal/internal/apiclient"
	"github.com/abduss/labportal/internal/authclient"
	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/logger"
	"github.com/abduss/labportal/internal/session"
	"github.com/abduss/labportal/internal/tokenstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiURL     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "labportal",
	Short: "Session client for the diagnostics lab booking service",
	Long: `labportal signs in to the lab identity service, keeps the session alive
and serves the role-guarded portal pages.

Environment Variables:
  LABPORTAL_API_BASE_URL   Identity service root (default: http://localhost:8000/api/v1)
  LABPORTAL_TOKEN_BACKEND  memory, file, redis or postgres (default: file)
  LOG_LEVEL                debug, info, warn or error (default: info)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Identity service URL (overrides LABPORTAL_API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
}

// app is the wired client shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	tokens  *tokenstore.Store
	session *session.Controller
	cleanup func()
}

type appOption func(*appConfig)

type appConfig struct {
	metrics *session.Metrics
}

func withSessionMetrics(m *session.Metrics) appOption {
	return func(c *appConfig) {
		c.metrics = m
	}
}

func newApp(ctx context.Context, opts ...appOption) (*app, error) {
	var ac appConfig
	for _, opt := range opts {
		opt(&ac)
	}

	logg, err := logger.Init()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}

	storage, closeStorage, err := tokenstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	tokens := tokenstore.New(storage,
		tokenstore.WithNamespace(cfg.TokenStore.Namespace),
		tokenstore.WithLogger(logg),
	)
	api := apiclient.New(cfg.API,
		apiclient.WithTokenSource(tokens),
		apiclient.WithLogger(logg),
	)
	ctrl := session.NewController(authclient.New(api), tokens, cfg.Session,
		session.WithLogger(logg),
		session.WithMetrics(ac.metrics),
	)

	return &app{
		cfg:     cfg,
		logger:  logg,
		tokens:  tokens,
		session: ctrl,
		cleanup: func() {
			ctrl.Close()
			closeStorage()
			_ = logg.Sync()
		},
	}, nil
}

func (a *app) Close() {
	a.cleanup()
}
