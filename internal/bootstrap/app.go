package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/middleware"
	"github.com/ramppay/ramppay-sync-go/internal/application"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// RunOptions carries the command-line choices into Run.
type RunOptions struct {
	// WatchTransaction, when non-empty, starts a status watcher for this
	// transaction ID and logs every derived progress change.
	WatchTransaction string
}

// Run establishes the session, binds the push channel and blocks until a
// shutdown signal arrives. When the debug HTTP port is configured it also
// serves /health, /ready and /metrics.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	version := "unknown"
	serviceName := "ramppay-sync"
	if a.configProvider != nil && a.configProvider.Get() != nil {
		configApp := a.configProvider.Get().App
		if configApp.Version != "" {
			version = configApp.Version
		}
		if configApp.ServiceName != "" {
			serviceName = configApp.ServiceName
		}
	}
	a.logger.Info(ctx, "Starting application", "service_name", serviceName, "version", version)

	a.registerDebugEndpoints()

	stateSub := a.channelManager.SubscribeState(func(state domain.ConnectionState) {
		a.logger.Info(context.Background(), "Channel state changed", "state", state.String())
	})
	defer stateSub.Close()

	if err := a.EnsureSession(ctx); err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	var watcher *application.Watcher
	if opts.WatchTransaction != "" {
		watcher = application.NewWatcher(a.apiClient, a.channelManager, a.logger, func(view application.TransactionView) {
			fields := []any{"transaction_id", view.Transaction.ID, "status", string(view.Transaction.Status)}
			for _, step := range view.Steps {
				fields = append(fields, "step_"+string(step.Status), step.State.String())
			}
			a.logger.Info(context.Background(), "Transaction updated", fields...)
		})
		if err := watcher.Watch(ctx, opts.WatchTransaction); err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				return fmt.Errorf("transaction %s not found", opts.WatchTransaction)
			}
			return fmt.Errorf("failed to watch transaction %s: %w", opts.WatchTransaction, err)
		}
		a.logger.Info(ctx, "Watching transaction", "transaction_id", opts.WatchTransaction)
	}

	done := make(chan struct{})
	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		defer close(done)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 10 * time.Second
		if a.configProvider != nil && a.configProvider.Get() != nil {
			configApp := a.configProvider.Get().App
			if configApp.ShutdownTimeoutSeconds > 0 {
				shutdownTimeout = time.Duration(configApp.ShutdownTimeoutSeconds) * time.Second
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if watcher != nil {
			watcher.Close()
		}
		// Disconnect only; the persisted session survives a restart.
		a.channelManager.Disconnect()

		if a.debugServerEnabled() {
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(context.Background(), "Debug HTTP server graceful shutdown failed", "error", err.Error())
			}
			a.logger.Info(context.Background(), "Debug HTTP server shut down.")
		}
	})

	if a.debugServerEnabled() {
		a.logger.Info(ctx, fmt.Sprintf("Debug HTTP server listening on port %d", a.configProvider.Get().App.DebugHTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "Debug HTTP server ListenAndServe error", "error", err.Error())
			return fmt.Errorf("failed to start debug HTTP server: %w", err)
		}
	}
	<-done

	a.logger.Info(ctx, "Application shut down gracefully.")
	return nil
}

// EnsureSession restores the persisted session when one exists and still
// validates against the API, otherwise logs in with the configured
// credentials. On success the channel is bound to the user's room.
func (a *App) EnsureSession(ctx context.Context) error {
	sess, err := a.sessionStore.Load(ctx)
	if err == nil {
		a.apiClient.SetBearer(sess.Bearer)
		user, meErr := a.apiClient.GetMe(ctx)
		if meErr == nil {
			a.logger.Info(ctx, "Restored persisted session", "user_id", user.ID)
			a.sessionBinding.SetUser(ctx, user.ID)
			return nil
		}
		var authErr *domain.AuthError
		if !errors.As(meErr, &authErr) {
			return fmt.Errorf("failed to validate persisted session: %w", meErr)
		}
		// The 401 hook already cleared the store; fall through to a fresh login.
		a.logger.Warn(ctx, "Persisted session rejected by API, logging in again")
	} else if !errors.Is(err, domain.ErrNoSession) {
		a.logger.Warn(ctx, "Failed to load persisted session, logging in again", "error", err.Error())
	}

	apiCfg := a.configProvider.Get().API
	if apiCfg.Email == "" || apiCfg.Password == "" {
		return errors.New("no persisted session and no api.email/api.password configured")
	}

	result, err := a.apiClient.Login(ctx, apiCfg.Email, apiCfg.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := a.sessionStore.Save(ctx, &domain.PersistedSession{
		Bearer:  result.Token,
		User:    result.User,
		SavedAt: time.Now(),
	}); err != nil {
		a.logger.Warn(ctx, "Failed to persist session", "error", err.Error())
	}
	a.logger.Info(ctx, "Logged in", "user_id", result.User.ID)
	a.sessionBinding.SetUser(ctx, result.User.ID)
	return nil
}

func (a *App) debugServerEnabled() bool {
	return a.configProvider != nil && a.configProvider.Get() != nil && a.configProvider.Get().App.DebugHTTPPort > 0
}

func (a *App) registerDebugEndpoints() {
	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ready := true
		dependenciesStatus := make(map[string]string)

		if a.redisClient != nil {
			if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
				dependenciesStatus["redis"] = "connected"
			} else {
				dependenciesStatus["redis"] = "disconnected"
				ready = false
				a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
			}
		} else {
			dependenciesStatus["redis"] = "not_configured"
			ready = false
		}

		channelState := a.channelManager.State()
		dependenciesStatus["channel"] = channelState.String()
		if channelState == domain.StateFailed {
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: push channel gave up reconnecting")
		}

		response := struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Dependencies: dependenciesStatus,
		}

		if ready {
			response.Status = "READY"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
		}
	})
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(readyHandler))

	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
}
