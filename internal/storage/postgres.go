package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// SchemaEzinfo holds the touchpoint tables that are not exposed to anonymous clients.
	SchemaEzinfo = "ezinfo"

	runtimeParameterApplicationName = "application_name"
	runtimeParameterSearchPath      = "search_path"
	applicationNamePrefix           = "ezinfo-"

	errorMessageMissingPostgresDataSource = "storage: missing postgres data source name"
	errorMessageParsePostgresConfig       = "storage: parse postgres config"
	errorMessageOpenPostgresPool          = "storage: open postgres pool"
	errorMessagePingPostgresPool          = "storage: ping postgres pool"
)

// ErrMissingPostgresDataSourceName indicates a pool was requested without a connection string.
var ErrMissingPostgresDataSourceName = errors.New(errorMessageMissingPostgresDataSource)

// PoolRole names the privilege level a pool connects with.
type PoolRole string

const (
	PoolRoleAnonymous     PoolRole = "anon"
	PoolRoleService       PoolRole = "service"
	PoolRoleServiceSchema PoolRole = "service-schema"
)

// PostgresConfig captures the connection strings for the remote touchpoint database.
// AnonymousDataSourceName falls back to ServiceDataSourceName when empty.
type PostgresConfig struct {
	ServiceDataSourceName   string
	AnonymousDataSourceName string
	Schema                  string
}

// PostgresPools groups the three clients used against the remote database.
type PostgresPools struct {
	Anonymous *pgxpool.Pool
	Service   *pgxpool.Pool
	Schema    *pgxpool.Pool
}

// NewAnonymousPool opens a pool for reads of the public touchpoint view.
func NewAnonymousPool(ctx context.Context, dataSourceName string) (*pgxpool.Pool, error) {
	return openPool(ctx, dataSourceName, PoolRoleAnonymous, "")
}

// NewServicePool opens a pool that runs the stored procedures.
func NewServicePool(ctx context.Context, dataSourceName string) (*pgxpool.Pool, error) {
	return openPool(ctx, dataSourceName, PoolRoleService, "")
}

// NewSchemaPool opens a service pool whose search_path is limited to schema.
func NewSchemaPool(ctx context.Context, dataSourceName string, schema string) (*pgxpool.Pool, error) {
	return openPool(ctx, dataSourceName, PoolRoleServiceSchema, schema)
}

// OpenPostgresPools opens all three pools, closing any already opened when one fails.
func OpenPostgresPools(ctx context.Context, configuration PostgresConfig) (PostgresPools, error) {
	serviceDataSourceName := strings.TrimSpace(configuration.ServiceDataSourceName)
	anonymousDataSourceName := strings.TrimSpace(configuration.AnonymousDataSourceName)
	if anonymousDataSourceName == "" {
		anonymousDataSourceName = serviceDataSourceName
	}
	schema := strings.TrimSpace(configuration.Schema)
	if schema == "" {
		schema = SchemaEzinfo
	}

	var pools PostgresPools
	var openErr error
	if pools.Service, openErr = NewServicePool(ctx, serviceDataSourceName); openErr != nil {
		return PostgresPools{}, openErr
	}
	if pools.Anonymous, openErr = NewAnonymousPool(ctx, anonymousDataSourceName); openErr != nil {
		pools.Close()
		return PostgresPools{}, openErr
	}
	if pools.Schema, openErr = NewSchemaPool(ctx, serviceDataSourceName, schema); openErr != nil {
		pools.Close()
		return PostgresPools{}, openErr
	}
	return pools, nil
}

// Close releases every opened pool.
func (pools PostgresPools) Close() {
	for _, pool := range []*pgxpool.Pool{pools.Anonymous, pools.Service, pools.Schema} {
		if pool != nil {
			pool.Close()
		}
	}
}

func openPool(ctx context.Context, dataSourceName string, role PoolRole, schema string) (*pgxpool.Pool, error) {
	poolConfig, configErr := buildPoolConfig(dataSourceName, role, schema)
	if configErr != nil {
		return nil, configErr
	}

	pool, openErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if openErr != nil {
		return nil, fmt.Errorf("%s (%s): %w", errorMessageOpenPostgresPool, role, openErr)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("%s (%s): %w", errorMessagePingPostgresPool, role, pingErr)
	}
	return pool, nil
}

func buildPoolConfig(dataSourceName string, role PoolRole, schema string) (*pgxpool.Config, error) {
	trimmedDataSourceName := strings.TrimSpace(dataSourceName)
	if trimmedDataSourceName == "" {
		return nil, fmt.Errorf("%w (%s)", ErrMissingPostgresDataSourceName, role)
	}

	poolConfig, parseErr := pgxpool.ParseConfig(trimmedDataSourceName)
	if parseErr != nil {
		return nil, fmt.Errorf("%s (%s): %w", errorMessageParsePostgresConfig, role, parseErr)
	}

	poolConfig.ConnConfig.RuntimeParams[runtimeParameterApplicationName] = applicationNamePrefix + string(role)
	if trimmedSchema := strings.TrimSpace(schema); trimmedSchema != "" {
		poolConfig.ConnConfig.RuntimeParams[runtimeParameterSearchPath] = trimmedSchema
	}
	return poolConfig, nil
}
