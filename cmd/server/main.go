package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/ratelimit"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/storage"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/task"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the EZinfo touchpoint server"
	commandLongDescription        = "Launch the EZinfo HTTP server: touchpoint pages, the JSON API, or both"
	missingConfigurationMessage   = "missing required configuration"
	invalidConfigurationMessage   = "invalid configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logEventShutdown              = "shutting_down"
	logFieldAddress               = "addr"
	logFieldServeMode             = "serve_mode"
	logFieldStoreDriver           = "store_driver"
	loggerContextServer           = "server"
	readHeaderTimeoutSeconds      = 5
	shutdownTimeout               = 10 * time.Second
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	environmentFileLoadError      = "failed to load environment file"
	eventRetentionJobName         = "event_retention"
	defaultEnvironmentFile        = ".env"

	flagNameApplicationAddress     = "app-addr"
	flagNameServeMode              = "serve-mode"
	flagNameStoreDriver            = "store-driver"
	flagNameDatabaseDataSourceName = "db-dsn"
	flagNameAnonymousDataSource    = "db-anon-dsn"
	flagNameRedisURL               = "redis-url"
	flagNameRateLimit              = "rate-limit"
	flagNameSeedFile               = "seed-file"
	flagNameEventQueueSize         = "event-queue-size"
	flagNameEventRetentionDays     = "event-retention-days"
	flagNameAllowedOrigins         = "allowed-origins"
	flagNameTrustedProxies         = "trusted-proxies"

	environmentKeyApplicationAddress  = "APP_ADDR"
	environmentKeyServeMode           = "SERVE_MODE"
	environmentKeyStoreDriver         = "STORE_DRIVER"
	environmentKeyDatabaseDataSource  = "DB_DSN"
	environmentKeyAnonymousDataSource = "DB_ANON_DSN"
	environmentKeyRedisURL            = "REDIS_URL"
	environmentKeyRateLimit           = "RATE_LIMIT_PER_MINUTE"
	environmentKeySeedFile            = "SEED_FILE"
	environmentKeyEventQueueSize      = "EVENT_QUEUE_SIZE"
	environmentKeyEventRetentionDays  = "EVENT_RETENTION_DAYS"
	environmentKeyAllowedOrigins      = "ALLOWED_ORIGINS"
	environmentKeyTrustedProxies      = "TRUSTED_PROXIES"

	defaultApplicationAddress = ":8080"
	storeDriverSQLite         = storage.DriverNameSQLite
	storeDriverPostgres       = "postgres"
)

var (
	ErrUnsupportedStoreDriver = errors.New("unsupported store driver")
	ErrInvalidLimitSetting    = errors.New("invalid numeric setting")
	ErrInvalidAllowedOrigin   = errors.New("invalid allowed origin")
	ErrInvalidTrustedProxy    = errors.New("invalid trusted proxy")
)

type flagDefinition struct {
	name           string
	environmentKey string
	defaultValue   string
	usage          string
}

var serverFlags = []flagDefinition{
	{name: flagNameApplicationAddress, environmentKey: environmentKeyApplicationAddress, defaultValue: defaultApplicationAddress, usage: "address for the HTTP server to listen on"},
	{name: flagNameServeMode, environmentKey: environmentKeyServeMode, defaultValue: string(ServeModeMonolith), usage: "what to serve: monolith, web or api"},
	{name: flagNameStoreDriver, environmentKey: environmentKeyStoreDriver, defaultValue: storeDriverSQLite, usage: "touchpoint store: sqlite (local emulation) or postgres (stored procedures)"},
	{name: flagNameDatabaseDataSourceName, environmentKey: environmentKeyDatabaseDataSource, defaultValue: "", usage: "SQLite path or PostgreSQL service-role connection string"},
	{name: flagNameAnonymousDataSource, environmentKey: environmentKeyAnonymousDataSource, defaultValue: "", usage: "PostgreSQL anonymous connection string (defaults to --db-dsn)"},
	{name: flagNameRedisURL, environmentKey: environmentKeyRedisURL, defaultValue: "", usage: "Redis URL for shared rate limiting (in-memory when empty)"},
	{name: flagNameRateLimit, environmentKey: environmentKeyRateLimit, defaultValue: strconv.Itoa(ratelimit.DefaultRequestsPerWindow), usage: "visitor requests allowed per client per minute"},
	{name: flagNameSeedFile, environmentKey: environmentKeySeedFile, defaultValue: "", usage: "YAML file of touchpoints to provision at startup"},
	{name: flagNameEventQueueSize, environmentKey: environmentKeyEventQueueSize, defaultValue: strconv.Itoa(task.DefaultEventQueueSize), usage: "buffered visitor events before new ones are dropped"},
	{name: flagNameEventRetentionDays, environmentKey: environmentKeyEventRetentionDays, defaultValue: strconv.Itoa(task.DefaultEventRetentionDays), usage: "days to keep events in the local store (0 keeps them forever)"},
	{name: flagNameAllowedOrigins, environmentKey: environmentKeyAllowedOrigins, defaultValue: corsOriginWildcard, usage: "comma separated origins allowed to call the JSON API"},
	{name: flagNameTrustedProxies, environmentKey: environmentKeyTrustedProxies, defaultValue: "", usage: "comma separated proxy IPs or CIDRs whose X-Forwarded-For is honored (none when empty)"},
}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress      string
	ServeMode               ServeMode
	StoreDriver             string
	DatabaseDataSourceName  string
	AnonymousDataSourceName string
	RedisURL                string
	RateLimitPerMinute      int
	SeedFile                string
	EventQueueSize          int
	EventRetentionDays      int
	AllowedOrigins          []string
	TrustedProxies          []string
}

// OpenedStore is a touchpoint store plus what the server needs to run and release it.
// Database is set only for the local store, which owns event retention.
type OpenedStore struct {
	Store    store.Store
	Database *gorm.DB
	Close    func()
}

// StoreOpener opens the touchpoint store selected by the configuration.
type StoreOpener func(context.Context, ServerConfig) (OpenedStore, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	storeOpener         StoreOpener
	environmentFiles    []string
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		storeOpener:         openStore,
		environmentFiles:    []string{defaultEnvironmentFile},
	}
}

// WithStoreOpener overrides the store opener dependency.
func (application *ServerApplication) WithStoreOpener(storeOpener StoreOpener) *ServerApplication {
	application.storeOpener = storeOpener
	return application
}

// WithEnvironmentFiles replaces the dotenv files read before flags are bound.
func (application *ServerApplication) WithEnvironmentFiles(paths ...string) *ServerApplication {
	application.environmentFiles = paths
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if loadErr := loadEnvironmentFiles(application.environmentFiles); loadErr != nil {
		return nil, loadErr
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

// loadEnvironmentFiles reads existing dotenv files without overriding variables already set.
func loadEnvironmentFiles(paths []string) error {
	for _, path := range paths {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			continue
		}
		if loadErr := godotenv.Load(path); loadErr != nil {
			return fmt.Errorf("%s %s: %w", environmentFileLoadError, path, loadErr)
		}
	}
	return nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, definition := range serverFlags {
		application.configurationLoader.SetDefault(definition.environmentKey, definition.defaultValue)
		commandFlags.String(definition.name, definition.defaultValue, definition.usage)
	}
	application.configurationLoader.AutomaticEnv()

	for _, definition := range serverFlags {
		if bindErr := application.bindFlag(commandFlags, definition.environmentKey, definition.name); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, definition.environmentKey, definition.name); environmentErr != nil {
			return environmentErr
		}
	}

	return command.MarkFlagRequired(flagNameDatabaseDataSourceName)
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

// LoadServerConfig reads and validates the bound configuration.
func (application *ServerApplication) LoadServerConfig() (ServerConfig, error) {
	loader := application.configurationLoader

	serverConfig := ServerConfig{
		ApplicationAddress:      strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		StoreDriver:             strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyStoreDriver))),
		DatabaseDataSourceName:  strings.TrimSpace(loader.GetString(environmentKeyDatabaseDataSource)),
		AnonymousDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyAnonymousDataSource)),
		RedisURL:                strings.TrimSpace(loader.GetString(environmentKeyRedisURL)),
		SeedFile:                strings.TrimSpace(loader.GetString(environmentKeySeedFile)),
		AllowedOrigins:          splitOrigins(loader.GetString(environmentKeyAllowedOrigins)),
		TrustedProxies:          splitList(loader.GetString(environmentKeyTrustedProxies)),
	}

	if serverConfig.DatabaseDataSourceName == "" {
		return ServerConfig{}, fmt.Errorf("%s: %s", missingConfigurationMessage, flagNameDatabaseDataSourceName)
	}

	serveMode, serveModeErr := ParseServeMode(loader.GetString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, fmt.Errorf("%s: %w", invalidConfigurationMessage, serveModeErr)
	}
	serverConfig.ServeMode = serveMode

	switch serverConfig.StoreDriver {
	case storeDriverSQLite, storeDriverPostgres:
	default:
		return ServerConfig{}, fmt.Errorf("%s: %w: %q", invalidConfigurationMessage, ErrUnsupportedStoreDriver, serverConfig.StoreDriver)
	}

	for _, origin := range serverConfig.AllowedOrigins {
		if origin == corsOriginWildcard && len(serverConfig.AllowedOrigins) == 1 {
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return ServerConfig{}, fmt.Errorf("%s: %w: %q", invalidConfigurationMessage, ErrInvalidAllowedOrigin, origin)
		}
	}

	for _, proxy := range serverConfig.TrustedProxies {
		if _, prefixErr := netip.ParsePrefix(proxy); prefixErr == nil {
			continue
		}
		if _, addressErr := netip.ParseAddr(proxy); addressErr != nil {
			return ServerConfig{}, fmt.Errorf("%s: %w: %q", invalidConfigurationMessage, ErrInvalidTrustedProxy, proxy)
		}
	}

	numericSettings := []struct {
		flagName string
		key      string
		minimum  int
		target   *int
	}{
		{flagName: flagNameRateLimit, key: environmentKeyRateLimit, minimum: 1, target: &serverConfig.RateLimitPerMinute},
		{flagName: flagNameEventQueueSize, key: environmentKeyEventQueueSize, minimum: 1, target: &serverConfig.EventQueueSize},
		{flagName: flagNameEventRetentionDays, key: environmentKeyEventRetentionDays, minimum: 0, target: &serverConfig.EventRetentionDays},
	}
	for _, setting := range numericSettings {
		rawValue := strings.TrimSpace(loader.GetString(setting.key))
		parsed, parseErr := strconv.Atoi(rawValue)
		if parseErr != nil || parsed < setting.minimum {
			return ServerConfig{}, fmt.Errorf("%s: %w: --%s=%q", invalidConfigurationMessage, ErrInvalidLimitSetting, setting.flagName, rawValue)
		}
		*setting.target = parsed
	}

	return serverConfig, nil
}

func splitOrigins(rawOrigins string) []string {
	origins := splitList(rawOrigins)
	if len(origins) == 0 {
		return []string{corsOriginWildcard}
	}
	return origins
}

func splitList(rawList string) []string {
	var entries []string
	for _, entry := range strings.Split(rawList, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}
	return entries
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.LoadServerConfig()
	if configErr != nil {
		return configErr
	}

	logger, loggerErr := newProductionLogger()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openedStore, openErr := application.storeOpener(ctx, serverConfig)
	if openErr != nil {
		return openErr
	}
	if openedStore.Close != nil {
		defer openedStore.Close()
	}

	if serverConfig.SeedFile != "" {
		if seedErr := applySeedFile(ctx, openedStore.Store, serverConfig.SeedFile, logger); seedErr != nil {
			return seedErr
		}
	}

	eventDispatcher := task.NewEventDispatcher(openedStore.Store, serverConfig.EventQueueSize, logger)
	eventDispatcher.Start(ctx)
	defer eventDispatcher.Stop()

	if openedStore.Database != nil && serverConfig.EventRetentionDays > 0 {
		retentionJob := task.NewEventRetentionJob(openedStore.Database, logger, task.EventRetentionConfig{RetentionDays: serverConfig.EventRetentionDays})
		retentionScheduler := task.NewScheduler(eventRetentionJobName, task.EventRetentionInterval, retentionJob.Run, logger)
		retentionScheduler.Start(ctx)
		defer retentionScheduler.Stop()
	}

	limiter, closeLimiter, limiterErr := buildLimiter(serverConfig)
	if limiterErr != nil {
		return limiterErr
	}
	defer closeLimiter()

	router, routerErr := buildRouter(routerDependencies{
		config:  serverConfig,
		store:   openedStore.Store,
		events:  eventDispatcher,
		limiter: limiter,
		logger:  logger,
	})
	if routerErr != nil {
		return routerErr
	}

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info(logEventShutdown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownContext)
	}()

	logger.Info(logEventListening,
		zap.String(logFieldAddress, serverConfig.ApplicationAddress),
		zap.String(logFieldServeMode, string(serverConfig.ServeMode)),
		zap.String(logFieldStoreDriver, serverConfig.StoreDriver),
	)
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error(loggerContextServer, zap.Error(serveErr))
		return serveErr
	}

	return nil
}

func newProductionLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return loggerConfig.Build()
}

// openStore opens the local gorm store or the three PostgreSQL pools behind the procedure store.
func openStore(ctx context.Context, serverConfig ServerConfig) (OpenedStore, error) {
	switch serverConfig.StoreDriver {
	case storeDriverPostgres:
		pools, poolsErr := storage.OpenPostgresPools(ctx, storage.PostgresConfig{
			ServiceDataSourceName:   serverConfig.DatabaseDataSourceName,
			AnonymousDataSourceName: serverConfig.AnonymousDataSourceName,
		})
		if poolsErr != nil {
			return OpenedStore{}, poolsErr
		}
		return OpenedStore{Store: store.NewPostgresStore(pools), Close: pools.Close}, nil
	case storeDriverSQLite:
		database, databaseErr := storage.OpenDatabase(storage.Config{
			DriverName:     storage.DriverNameSQLite,
			DataSourceName: serverConfig.DatabaseDataSourceName,
		})
		if databaseErr != nil {
			return OpenedStore{}, databaseErr
		}
		if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
			return OpenedStore{}, fmt.Errorf("migrate: %w", migrateErr)
		}
		closeDatabase := func() {
			if sqlDatabase, sqlErr := database.DB(); sqlErr == nil {
				_ = sqlDatabase.Close()
			}
		}
		return OpenedStore{Store: store.NewLocalStore(database), Database: database, Close: closeDatabase}, nil
	default:
		return OpenedStore{}, fmt.Errorf("%w: %q", ErrUnsupportedStoreDriver, serverConfig.StoreDriver)
	}
}

func applySeedFile(ctx context.Context, procedures store.Procedures, path string, logger *zap.Logger) error {
	seed, loadErr := store.LoadSeedFile(path)
	if loadErr != nil {
		return loadErr
	}
	results, seedErr := store.ApplySeed(ctx, procedures, seed)
	if seedErr != nil {
		return seedErr
	}
	for _, result := range results {
		logger.Info("seeded_touchpoint",
			zap.String("slug", result.Slug),
			zap.String("touchpoint_id", result.TouchpointID),
			zap.Bool("already_exists", result.AlreadyExists),
		)
	}
	return nil
}

// buildLimiter shares counters through Redis when a URL is configured.
func buildLimiter(serverConfig ServerConfig) (ratelimit.Limiter, func(), error) {
	if serverConfig.RedisURL == "" {
		limiter, limiterErr := ratelimit.NewMemoryLimiter(serverConfig.RateLimitPerMinute, ratelimit.DefaultWindow)
		if limiterErr != nil {
			return nil, nil, limiterErr
		}
		return limiter, func() {}, nil
	}
	limiter, limiterErr := ratelimit.NewRedisLimiter(serverConfig.RedisURL, serverConfig.RateLimitPerMinute, ratelimit.DefaultWindow)
	if limiterErr != nil {
		return nil, nil, limiterErr
	}
	return limiter, func() { _ = limiter.Close() }, nil
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
