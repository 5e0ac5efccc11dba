package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const queryFallbackKey = "tenancy.queryfallback.enabled"

// sections are the top-level keys environment variables may set.
var sections = []string{"app", "server", "log", "database", "mongo", "tenancy", "invalidation", "observability", "admin"}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.<env>.yaml
// 3. config.yaml
// 4. Default values (lowest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	loadOptionalFile(k, "config.yaml")

	// APP_ENV decides which overlay file applies, so peek at it before the env layer.
	environment := k.String("app.env")
	if v := os.Getenv("APP_ENV"); v != "" {
		environment = v
	}
	if environment != "" {
		loadOptionalFile(k, fmt.Sprintf("config.%s.yaml", environment))
	}

	if err := loadEnv(k); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return finish(k)
}

// LoadFromBytes loads defaults overlaid with a YAML document. Environment variables
// are not consulted.
func LoadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	if !k.Exists(queryFallbackKey) {
		if err := k.Set(queryFallbackKey, k.String("app.env") == EnvDevelopment); err != nil {
			return nil, fmt.Errorf("failed to default %s: %w", queryFallbackKey, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string) {
	err := k.Load(file.Provider(path), yaml.Parser())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", path, err)
	}
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		TransformFunc: envKey,
	}), nil)
}

// envKey converts UPPER_CASE to lower.case and drops variables outside the known
// sections. List values are comma separated.
func envKey(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
	section, _, _ := strings.Cut(key, ".")
	known := false
	for _, s := range sections {
		if s == section {
			known = true
			break
		}
	}
	if !known || section == key {
		return "", nil
	}
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":       "tenantgate",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.debug":      false,
		"app.rate.limit": 100,
		"app.rate.burst": 200,

		"server.host":               "0.0.0.0",
		"server.port":               8080,
		"server.bodylimit":          "2M",
		"server.timeout.read":       "15s",
		"server.timeout.write":      "30s",
		"server.timeout.idle":       "60s",
		"server.timeout.middleware": "5s",
		"server.timeout.shutdown":   "10s",
		"server.path.base":          "",
		"server.path.health":        "/health",
		"server.path.ready":         "/ready",

		"log.level":  "info",
		"log.pretty": false,

		// Database defaults not provided: the store is only enabled when configured.
		"database.slowquery": "200ms",

		"mongo.database":   "tenantgate",
		"mongo.collection": "tenants",
		"mongo.timeout":    "10s",

		"tenancy.source":                "static",
		"tenancy.header":                "X-Tenant-ID",
		"tenancy.forwardedhost.enabled": true,
		"tenancy.forwardedhost.header":  "X-Forwarded-Host",
		"tenancy.queryfallback.param":   "tenant",
		"tenancy.reservedhosts":         []string{"localhost", "127.0.0.1", "0.0.0.0"},
		"tenancy.directory.ttl":         "5m",
		"tenancy.directory.stalegrace":  "30m",
		"tenancy.directory.refresh":     "1m",

		"invalidation.transport":      TransportLocal,
		"invalidation.redis.port":     6379,
		"invalidation.redis.channel":  "tenantgate:tenants:invalidate",
		"invalidation.amqp.exchange":  "tenantgate.tenants.invalidate",

		"observability.enabled":        false,
		"observability.exporter":       ExporterStdout,
		"observability.protocol":       ProtocolHTTP,
		"observability.sampleratio":    1.0,
		"observability.metricinterval": "30s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// Koanf exposes the underlying koanf instance for ad hoc lookups.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}

// IsDevelopment reports whether app.env is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}
