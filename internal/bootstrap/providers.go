package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/adapters/httpapi"
	"github.com/ramppay/ramppay-sync-go/internal/adapters/logger"
	appredis "github.com/ramppay/ramppay-sync-go/internal/adapters/redis"
	wsadapter "github.com/ramppay/ramppay-sync-go/internal/adapters/websocket"
	"github.com/ramppay/ramppay-sync-go/internal/application"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		// Syncing flushes any buffered log entries before exit.
		if syncErr := zapLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return zapLogger, cleanup, nil
}

// App wires the client together: configuration, logging, persisted state,
// the REST client, the push channel and the session binding.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	redisClient    *redis.Client
	sessionStore   domain.SessionStore
	apiClient      *httpapi.Client
	channelManager *application.ChannelManager
	sessionBinding *application.SessionBinding
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	redisClient *redis.Client,
	sessionStore domain.SessionStore,
	apiClient *httpapi.Client,
	channelManager *application.ChannelManager,
	sessionBinding *application.SessionBinding,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		redisClient:    redisClient,
		sessionStore:   sessionStore,
		apiClient:      apiClient,
		channelManager: channelManager,
		sessionBinding: sessionBinding,
	}

	// A 401 anywhere is a global logout: purge the persisted session and let
	// the binding leave the room and drop the channel.
	apiClient.SetOnUnauthorized(func(ctx context.Context) {
		if err := sessionStore.Clear(ctx); err != nil {
			appLogger.Warn(ctx, "Failed to clear persisted session after 401", "error", err.Error())
		}
		sessionBinding.ClearUser(ctx)
	})

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		app.channelManager.Disconnect()
		if err := app.redisClient.Close(); err != nil {
			app.logger.Warn(context.Background(), "Failed to close redis client", "error", err.Error())
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// RedisClientProvider provides the client for the local state store.
func RedisClientProvider(appCtx context.Context, cfgProvider config.Provider) (*redis.Client, error) {
	redisCfg := cfgProvider.Get().Redis
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed for %s: %w", redisCfg.Address, err)
	}
	return client, nil
}

// SessionStoreProvider provides the persisted session store.
func SessionStoreProvider(redisClient *redis.Client, cfgProvider config.Provider, appLogger domain.Logger) domain.SessionStore {
	return appredis.NewSessionStoreAdapter(redisClient, cfgProvider, appLogger)
}

// APIClientProvider provides the REST client.
func APIClientProvider(cfgProvider config.Provider, appLogger domain.Logger) *httpapi.Client {
	return httpapi.NewClient(cfgProvider, appLogger)
}

// CredentialSourceProvider exposes the REST client as the bearer source for
// the push-channel handshake.
func CredentialSourceProvider(apiClient *httpapi.Client) domain.CredentialSource {
	return apiClient
}

// ChannelTransportProvider provides the WebSocket dialer for the push channel.
func ChannelTransportProvider(cfgProvider config.Provider, credentials domain.CredentialSource, appLogger domain.Logger) domain.ChannelTransport {
	return wsadapter.NewTransport(cfgProvider, credentials, appLogger)
}

// ChannelManagerProvider provides the push-channel manager.
func ChannelManagerProvider(transport domain.ChannelTransport, cfgProvider config.Provider, appLogger domain.Logger) *application.ChannelManager {
	return application.NewChannelManager(transport, cfgProvider, appLogger)
}

// SessionBindingProvider provides the session-to-room binding.
func SessionBindingProvider(channelManager *application.ChannelManager, appLogger domain.Logger) *application.SessionBinding {
	return application.NewSessionBinding(channelManager, appLogger)
}

// HTTPServeMuxProvider provides the mux for the debug endpoints.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPServerProvider provides the debug HTTP server.
func HTTPServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfgProvider.Get().App.DebugHTTPPort),
		Handler: mux,
	}
}

// ProviderSet is the Wire provider set for the whole application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	RedisClientProvider,
	SessionStoreProvider,
	APIClientProvider,
	CredentialSourceProvider,
	ChannelTransportProvider,
	ChannelManagerProvider,
	SessionBindingProvider,
	HTTPServeMuxProvider,
	HTTPServerProvider,
	NewApp,
)
