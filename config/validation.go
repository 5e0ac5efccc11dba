package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

const (
	defaultSlowQueryThreshold = 200 * time.Millisecond
	defaultMaxConns           = 25
)

// Database type constants
const (
	PostgreSQL = "postgresql"
	Oracle     = "oracle"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Tenant sources
const (
	SourceStatic   = "static"
	SourceDatabase = "database"
	SourceMongo    = "mongo"
)

// Invalidation transports
const (
	TransportLocal = "local"
	TransportRedis = "redis"
	TransportAMQP  = "amqp"
)

// Telemetry exporters and OTLP protocols
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ProtocolHTTP   = "http"
	ProtocolGRPC   = "grpc"
)

// Validate checks cfg and fills in derived defaults. It returns the first problem found.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := validateDatabase(&cfg.Database); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := validateTenancy(cfg); err != nil {
		return fmt.Errorf("tenancy config: %w", err)
	}
	if err := validateInvalidation(&cfg.Invalidation); err != nil {
		return fmt.Errorf("invalidation config: %w", err)
	}
	if err := validateObservability(&cfg.Observability, cfg.App.Name); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}
	if err := validateAdmin(&cfg.Admin); err != nil {
		return fmt.Errorf("admin config: %w", err)
	}
	return nil
}

func validateAdmin(cfg *AdminConfig) error {
	for _, list := range []struct {
		field string
		cidrs []string
	}{
		{"admin.allowcidrs", cfg.AllowCIDRs},
		{"admin.trustedproxies", cfg.TrustedProxies},
	} {
		for _, cidr := range list.cidrs {
			if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
				return NewInvalidFieldError(list.field, fmt.Sprintf("invalid CIDR %q", cidr), nil)
			}
		}
	}
	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name")
	}
	if cfg.Version == "" {
		return NewMissingFieldError("app.version")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("unknown environment %q", cfg.Env), validEnvs)
	}

	if cfg.Rate.Limit < 0 {
		return NewInvalidFieldError("app.rate.limit", "must be zero or positive", nil)
	}
	if cfg.Rate.Limit > 0 && cfg.Rate.Burst <= 0 {
		cfg.Rate.Burst = cfg.Rate.Limit
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return NewInvalidFieldError("server.port", fmt.Sprintf("invalid port %d (must be 1-65535)", cfg.Port), nil)
	}
	if cfg.Timeout.Read <= 0 {
		return NewInvalidFieldError("server.timeout.read", "must be positive", nil)
	}
	if cfg.Timeout.Write <= 0 {
		return NewInvalidFieldError("server.timeout.write", "must be positive", nil)
	}
	if cfg.Timeout.Shutdown <= 0 {
		return NewInvalidFieldError("server.timeout.shutdown", "must be positive", nil)
	}
	return nil
}

func validateLog(cfg *LogConfig) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !slices.Contains(validLevels, strings.ToLower(cfg.Level)) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("unknown level %q", cfg.Level), validLevels)
	}
	return nil
}

// IsDatabaseConfigured reports whether the SQL store was configured at all.
func IsDatabaseConfigured(cfg *DatabaseConfig) bool {
	return cfg.ConnectionString != "" || cfg.Host != "" || cfg.Type != ""
}

func validateDatabase(cfg *DatabaseConfig) error {
	if !IsDatabaseConfigured(cfg) {
		return nil
	}

	if cfg.Type == "" {
		cfg.Type = PostgreSQL
	}
	validTypes := []string{PostgreSQL, Oracle}
	if !slices.Contains(validTypes, cfg.Type) {
		return NewInvalidFieldError("database.type", fmt.Sprintf("unsupported type %q", cfg.Type), validTypes)
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return NewInvalidFieldError("database.port", fmt.Sprintf("invalid port %d", cfg.Port), nil)
	}

	if cfg.ConnectionString == "" {
		if cfg.Host == "" {
			return NewMissingFieldError("database.host")
		}
		if cfg.Port == 0 {
			return NewMissingFieldError("database.port")
		}
		if cfg.Type == PostgreSQL && cfg.Database == "" {
			return NewMissingFieldError("database.database")
		}
		if cfg.Type == Oracle && cfg.ServiceName == "" && cfg.Database == "" {
			return NewMissingFieldError("database.servicename")
		}
		if cfg.Username == "" {
			return NewMissingFieldError("database.username")
		}
	}

	return applyDatabasePoolDefaults(cfg)
}

func applyDatabasePoolDefaults(cfg *DatabaseConfig) error {
	if cfg.Pool.Max < 0 {
		return NewInvalidFieldError("database.pool.max", "must be positive", nil)
	}
	if cfg.Pool.Max == 0 {
		cfg.Pool.Max = defaultMaxConns
	}
	if cfg.Pool.Idle < 0 || cfg.Pool.Idle > cfg.Pool.Max {
		return NewInvalidFieldError("database.pool.idle", "must be between 0 and database.pool.max", nil)
	}
	if cfg.SlowQuery < 0 {
		return NewInvalidFieldError("database.slowquery", "must be zero or positive", nil)
	}
	if cfg.SlowQuery == 0 {
		cfg.SlowQuery = defaultSlowQueryThreshold
	}
	return nil
}

func validateTenancy(cfg *Config) error {
	t := &cfg.Tenancy

	validSources := []string{SourceStatic, SourceDatabase, SourceMongo}
	if !slices.Contains(validSources, t.Source) {
		return NewInvalidFieldError("tenancy.source", fmt.Sprintf("unknown source %q", t.Source), validSources)
	}
	switch t.Source {
	case SourceDatabase:
		if !IsDatabaseConfigured(&cfg.Database) {
			return NewMissingFieldError("database.host")
		}
	case SourceMongo:
		if cfg.Mongo.URI == "" {
			return NewMissingFieldError("mongo.uri")
		}
		if cfg.Mongo.Database == "" {
			return NewMissingFieldError("mongo.database")
		}
		if cfg.Mongo.Collection == "" {
			return NewMissingFieldError("mongo.collection")
		}
	}

	if strings.TrimSpace(t.Header) == "" {
		return NewMissingFieldError("tenancy.header")
	}
	if t.ForwardedHost.Enabled && strings.TrimSpace(t.ForwardedHost.Header) == "" {
		return NewMissingFieldError("tenancy.forwardedhost.header")
	}
	if t.QueryFallback.Enabled && strings.TrimSpace(t.QueryFallback.Param) == "" {
		return NewMissingFieldError("tenancy.queryfallback.param")
	}

	if t.Directory.TTL <= 0 {
		return NewInvalidFieldError("tenancy.directory.ttl", "must be positive", nil)
	}
	if t.Directory.StaleGrace < 0 {
		return NewInvalidFieldError("tenancy.directory.stalegrace", "must be zero or positive", nil)
	}
	if t.Directory.Refresh < 0 {
		return NewInvalidFieldError("tenancy.directory.refresh", "must be zero or positive", nil)
	}

	return validateStaticTenants(t.Tenants)
}

func validateStaticTenants(tenants []TenantConfig) error {
	ids := make(map[int64]struct{}, len(tenants))
	for i, tc := range tenants {
		if tc.ID <= 0 {
			return NewTenantError(i, "id", "must be positive")
		}
		if _, dup := ids[tc.ID]; dup {
			return NewTenantError(i, "id", fmt.Sprintf("duplicate id %d", tc.ID))
		}
		ids[tc.ID] = struct{}{}
		if strings.TrimSpace(tc.Slug) == "" {
			return NewTenantError(i, "slug", "required")
		}
		if strings.TrimSpace(tc.Domain) == "" {
			return NewTenantError(i, "domain", "required")
		}
	}
	return nil
}

func validateInvalidation(cfg *InvalidationConfig) error {
	validTransports := []string{TransportLocal, TransportRedis, TransportAMQP}
	if !slices.Contains(validTransports, cfg.Transport) {
		return NewInvalidFieldError("invalidation.transport", fmt.Sprintf("unknown transport %q", cfg.Transport), validTransports)
	}
	switch cfg.Transport {
	case TransportRedis:
		if cfg.Redis.Host == "" {
			return NewMissingFieldError("invalidation.redis.host")
		}
		if cfg.Redis.Channel == "" {
			return NewMissingFieldError("invalidation.redis.channel")
		}
	case TransportAMQP:
		if cfg.AMQP.URL == "" {
			return NewMissingFieldError("invalidation.amqp.url")
		}
		if cfg.AMQP.Exchange == "" {
			return NewMissingFieldError("invalidation.amqp.exchange")
		}
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig, appName string) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = appName
	}

	validExporters := []string{ExporterStdout, ExporterOTLP}
	if !slices.Contains(validExporters, cfg.Exporter) {
		return NewInvalidFieldError("observability.exporter", fmt.Sprintf("unknown exporter %q", cfg.Exporter), validExporters)
	}
	if cfg.Exporter == ExporterOTLP {
		validProtocols := []string{ProtocolHTTP, ProtocolGRPC}
		if !slices.Contains(validProtocols, cfg.Protocol) {
			return NewInvalidFieldError("observability.protocol", fmt.Sprintf("unknown protocol %q", cfg.Protocol), validProtocols)
		}
		if cfg.Endpoint == "" {
			return NewMissingFieldError("observability.endpoint")
		}
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return NewInvalidFieldError("observability.sampleratio", "must be between 0 and 1", nil)
	}
	if cfg.MetricInterval <= 0 {
		return NewInvalidFieldError("observability.metricinterval", "must be positive", nil)
	}
	return nil
}
