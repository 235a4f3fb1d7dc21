// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worklogd/worklogd/pkg/auth"
	"github.com/worklogd/worklogd/pkg/authserver"
	"github.com/worklogd/worklogd/pkg/authserver/storage"
	"github.com/worklogd/worklogd/pkg/authserver/upstream"
	"github.com/worklogd/worklogd/pkg/config"
	"github.com/worklogd/worklogd/pkg/db"
	"github.com/worklogd/worklogd/pkg/logger"
	"github.com/worklogd/worklogd/pkg/session"
	"github.com/worklogd/worklogd/pkg/transport"
	"github.com/worklogd/worklogd/pkg/users"
	"github.com/worklogd/worklogd/pkg/worklog"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the worklogd server",
		Long: `Start the worklogd server.

The server exposes the OAuth2 endpoints used by clients to register and
obtain tokens, and the /mcp endpoint where authenticated clients open
sessions and call worklog tools.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	database, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	provider, err := upstream.NewProvider(ctx, upstreamConfig(cfg))
	if err != nil {
		return fmt.Errorf("configuring upstream identity provider: %w", err)
	}

	store := storage.NewSQLiteStore(database)
	userStore := users.NewSQLiteStore(database)

	authServer, err := authserver.NewServer(&authserver.Config{
		Issuer:         cfg.Issuer,
		CodeTTL:        cfg.Auth.CodeTTL,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
		PendingTTL:     cfg.Auth.PendingTTL,
		SweepInterval:  cfg.Auth.SweepInterval,
	}, store, store, userStore, provider)
	if err != nil {
		return fmt.Errorf("creating authorization server: %w", err)
	}
	defer authServer.Close()

	tools := worklog.NewToolHandler(worklog.NewSQLiteStore(database), userStore)
	factory := transport.NewMCPFactory("worklogd", version, tools)

	manager := session.NewManager(cfg.SessionTTL)
	defer manager.Stop()

	r := chi.NewRouter()
	authHandler := authserver.NewHandler(authServer)
	authHandler.OAuthRoutes(r)
	authHandler.WellKnownRoutes(r)
	r.Route("/mcp", func(r chi.Router) {
		r.Use(auth.Middleware(authServer))
		r.Mount("/", session.NewRouter(manager, factory).Routes())
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("worklogd listening", "address", cfg.ListenAddress(), "issuer", cfg.Issuer)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func upstreamConfig(cfg *config.Config) *upstream.Config {
	return &upstream.Config{
		Type:                  upstream.ProviderType(cfg.Upstream.Type),
		ClientID:              cfg.Upstream.ClientID,
		ClientSecret:          cfg.Upstream.ClientSecret,
		RedirectURI:           strings.TrimRight(cfg.Issuer, "/") + "/oauth/callback",
		Scopes:                cfg.Upstream.Scopes,
		Issuer:                cfg.Upstream.Issuer,
		AuthorizationEndpoint: cfg.Upstream.AuthorizationEndpoint,
		TokenEndpoint:         cfg.Upstream.TokenEndpoint,
		UserInfoEndpoint:      cfg.Upstream.UserinfoEndpoint,
	}
}
