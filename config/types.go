package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the service configuration. Keys never contain underscores so that
// environment variables map onto them directly (TENANCY_HEADER -> tenancy.header).
type Config struct {
	App           AppConfig           `koanf:"app" json:"app" yaml:"app"`
	Server        ServerConfig        `koanf:"server" json:"server" yaml:"server"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log"`
	Database      DatabaseConfig      `koanf:"database" json:"database" yaml:"database"`
	Mongo         MongoConfig         `koanf:"mongo" json:"mongo" yaml:"mongo"`
	Tenancy       TenancyConfig       `koanf:"tenancy" json:"tenancy" yaml:"tenancy"`
	Invalidation  InvalidationConfig  `koanf:"invalidation" json:"invalidation" yaml:"invalidation"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`
	Admin         AdminConfig         `koanf:"admin" json:"admin" yaml:"admin"`

	k *koanf.Koanf
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name    string     `koanf:"name" json:"name" yaml:"name"`
	Version string     `koanf:"version" json:"version" yaml:"version"`
	Env     string     `koanf:"env" json:"env" yaml:"env"`
	Debug   bool       `koanf:"debug" json:"debug" yaml:"debug"`
	Rate    RateConfig `koanf:"rate" json:"rate" yaml:"rate"`
}

// RateConfig is the per-tenant request rate limit. Limit is requests per second;
// zero disables limiting.
type RateConfig struct {
	Limit int `koanf:"limit" json:"limit" yaml:"limit"`
	Burst int `koanf:"burst" json:"burst" yaml:"burst"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host      string        `koanf:"host" json:"host" yaml:"host"`
	Port      int           `koanf:"port" json:"port" yaml:"port"`
	BodyLimit string        `koanf:"bodylimit" json:"bodylimit" yaml:"bodylimit"`
	Timeout   TimeoutConfig `koanf:"timeout" json:"timeout" yaml:"timeout"`
	Path      PathConfig    `koanf:"path" json:"path" yaml:"path"`
	CORS      CORSConfig    `koanf:"cors" json:"cors" yaml:"cors"`
}

type TimeoutConfig struct {
	Read       time.Duration `koanf:"read" json:"read" yaml:"read"`
	Write      time.Duration `koanf:"write" json:"write" yaml:"write"`
	Idle       time.Duration `koanf:"idle" json:"idle" yaml:"idle"`
	Middleware time.Duration `koanf:"middleware" json:"middleware" yaml:"middleware"`
	Shutdown   time.Duration `koanf:"shutdown" json:"shutdown" yaml:"shutdown"`
}

type PathConfig struct {
	Base   string `koanf:"base" json:"base" yaml:"base"`
	Health string `koanf:"health" json:"health" yaml:"health"`
	Ready  string `koanf:"ready" json:"ready" yaml:"ready"`
}

// CORSConfig lists the allowed browser origins. Empty means any origin.
type CORSConfig struct {
	Origins []string `koanf:"origins" json:"origins" yaml:"origins"`
}

// AdminConfig restricts the admin API by client address. An empty allowlist
// admits loopback clients only. Proxy headers are honoured only when the
// immediate peer is in TrustedProxies.
type AdminConfig struct {
	AllowCIDRs     []string `koanf:"allowcidrs" json:"allowcidrs" yaml:"allowcidrs"`
	TrustedProxies []string `koanf:"trustedproxies" json:"trustedproxies" yaml:"trustedproxies"`
}

type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// DatabaseConfig configures the SQL store. The database is disabled unless a type,
// host or connection string is set.
type DatabaseConfig struct {
	Type             string        `koanf:"type" json:"type" yaml:"type"`
	Host             string        `koanf:"host" json:"host" yaml:"host"`
	Port             int           `koanf:"port" json:"port" yaml:"port"`
	Database         string        `koanf:"database" json:"database" yaml:"database"`
	Username         string        `koanf:"username" json:"username" yaml:"username"`
	Password         string        `koanf:"password" json:"-" yaml:"password"` //nolint:gosec // loaded from env
	ConnectionString string        `koanf:"connectionstring" json:"-" yaml:"connectionstring"`
	SSLMode          string        `koanf:"sslmode" json:"sslmode" yaml:"sslmode"`
	ServiceName      string        `koanf:"servicename" json:"servicename" yaml:"servicename"`
	SlowQuery        time.Duration `koanf:"slowquery" json:"slowquery" yaml:"slowquery"`
	Migrate          bool          `koanf:"migrate" json:"migrate" yaml:"migrate"`
	Pool             PoolConfig    `koanf:"pool" json:"pool" yaml:"pool"`
}

type PoolConfig struct {
	Max      int32         `koanf:"max" json:"max" yaml:"max"`
	Idle     int32         `koanf:"idle" json:"idle" yaml:"idle"`
	Lifetime time.Duration `koanf:"lifetime" json:"lifetime" yaml:"lifetime"`
	IdleTime time.Duration `koanf:"idletime" json:"idletime" yaml:"idletime"`
}

// MongoConfig configures the MongoDB tenant source.
type MongoConfig struct {
	URI        string        `koanf:"uri" json:"-" yaml:"uri"`
	Database   string        `koanf:"database" json:"database" yaml:"database"`
	Collection string        `koanf:"collection" json:"collection" yaml:"collection"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
}

// TenancyConfig configures tenant resolution and the tenant directory.
type TenancyConfig struct {
	// Source is where tenants are loaded from: database, mongo or static.
	Source        string              `koanf:"source" json:"source" yaml:"source"`
	Header        string              `koanf:"header" json:"header" yaml:"header"`
	ForwardedHost ForwardedHostConfig `koanf:"forwardedhost" json:"forwardedhost" yaml:"forwardedhost"`
	QueryFallback QueryFallbackConfig `koanf:"queryfallback" json:"queryfallback" yaml:"queryfallback"`
	ReservedHosts []string            `koanf:"reservedhosts" json:"reservedhosts" yaml:"reservedhosts"`
	Directory     DirectoryConfig     `koanf:"directory" json:"directory" yaml:"directory"`
	Tenants       []TenantConfig      `koanf:"tenants" json:"tenants" yaml:"tenants"`
}

type ForwardedHostConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Header  string `koanf:"header" json:"header" yaml:"header"`
}

// QueryFallbackConfig gates the ?tenant= strategy. When not set explicitly it is
// enabled only in development.
type QueryFallbackConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Param   string `koanf:"param" json:"param" yaml:"param"`
}

type DirectoryConfig struct {
	TTL        time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`
	StaleGrace time.Duration `koanf:"stalegrace" json:"stalegrace" yaml:"stalegrace"`
	// Refresh is the interval of the background reload job; zero disables it.
	Refresh time.Duration `koanf:"refresh" json:"refresh" yaml:"refresh"`
}

// TenantConfig declares a tenant for the static source.
type TenantConfig struct {
	ID       int64          `koanf:"id" json:"id" yaml:"id"`
	Slug     string         `koanf:"slug" json:"slug" yaml:"slug"`
	Name     string         `koanf:"name" json:"name" yaml:"name"`
	Domain   string         `koanf:"domain" json:"domain" yaml:"domain"`
	Domains  []string       `koanf:"domains" json:"domains" yaml:"domains"`
	Active   *bool          `koanf:"active" json:"active" yaml:"active"`
	Template int64          `koanf:"template" json:"template" yaml:"template"`
	Settings map[string]any `koanf:"settings" json:"settings" yaml:"settings"`
}

// IsActive treats an omitted active flag as true.
func (t TenantConfig) IsActive() bool {
	return t.Active == nil || *t.Active
}

// InvalidationConfig selects the transport that spreads tenant changes between
// instances: local (single process), redis or amqp.
type InvalidationConfig struct {
	Transport string           `koanf:"transport" json:"transport" yaml:"transport"`
	Redis     RedisConfig      `koanf:"redis" json:"redis" yaml:"redis"`
	AMQP      AMQPBrokerConfig `koanf:"amqp" json:"amqp" yaml:"amqp"`
}

type RedisConfig struct {
	Host     string `koanf:"host" json:"host" yaml:"host"`
	Port     int    `koanf:"port" json:"port" yaml:"port"`
	Password string `koanf:"password" json:"-" yaml:"password"` //nolint:gosec // loaded from env
	Database int    `koanf:"database" json:"database" yaml:"database"`
	Channel  string `koanf:"channel" json:"channel" yaml:"channel"`
}

type AMQPBrokerConfig struct {
	URL      string `koanf:"url" json:"-" yaml:"url"`
	Exchange string `koanf:"exchange" json:"exchange" yaml:"exchange"`
}

// ObservabilityConfig configures OpenTelemetry traces and metrics.
type ObservabilityConfig struct {
	Enabled     bool    `koanf:"enabled" json:"enabled" yaml:"enabled"`
	ServiceName string  `koanf:"servicename" json:"servicename" yaml:"servicename"`
	Exporter    string  `koanf:"exporter" json:"exporter" yaml:"exporter"` // stdout or otlp
	Protocol    string  `koanf:"protocol" json:"protocol" yaml:"protocol"` // http or grpc
	Endpoint    string  `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Insecure    bool    `koanf:"insecure" json:"insecure" yaml:"insecure"`
	SampleRatio float64 `koanf:"sampleratio" json:"sampleratio" yaml:"sampleratio"`

	MetricInterval time.Duration `koanf:"metricinterval" json:"metricinterval" yaml:"metricinterval"`
}
