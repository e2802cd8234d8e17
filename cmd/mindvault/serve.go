package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/auth"
	"github.com/MarcoPoloResearchLab/mindvault/internal/editor"
	"github.com/MarcoPoloResearchLab/mindvault/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	realtime := server.NewRealtimeDispatcher()
	app, err := newApplication(signalCtx, applicationOptions{observer: realtime.NoteObserver()})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.close(); closeErr != nil {
			app.logger.Error("shutdown drain failed", zap.Error(closeErr))
		}
	}()
	logger := app.logger
	if stored, err := app.store.Count(signalCtx); err == nil {
		logger.Info("vault ready", zap.Int64("notes", stored))
	}

	session, err := editor.New(editor.Config{
		Cache:       app.cache,
		QuietPeriod: app.config.EditorQuietPeriod,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Cache:          app.cache,
		Editor:         session,
		Attachments:    app.ingester,
		Assistant:      app.assistant,
		Organizer:      app.organizer,
		Backup:         app.backup,
		Realtime:       realtime,
		AllowedOrigins: app.config.AllowedOrigins,
		BaseContext:    signalCtx,
		Logger:         logger,
	}
	if app.config.AuthEnabled() {
		tokenManager, err := newTokenIssuer(app.config.AuthSigningSecret, app.config.AuthTokenTTL)
		if err != nil {
			return err
		}
		deps.TokenManager = tokenManager
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	// Request contexts derive from signalCtx so open event streams end on shutdown.
	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return signalCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", app.config.HTTPAddress),
			zap.Bool("auth_enabled", app.config.AuthEnabled()),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.organizer.Stop()
		err := httpServer.Shutdown(shutdownCtx)
		if pending, flushErr := session.Flush(); flushErr == nil && pending != nil {
			if waitErr := pending.Wait(shutdownCtx); waitErr != nil {
				logger.Warn("final editor save failed", zap.Error(waitErr))
			}
		}
		session.Close()
		return err
	case err := <-errCh:
		return err
	}
}

func newTokenIssuer(secret string, ttl time.Duration) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(secret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      ttl,
	})
}
