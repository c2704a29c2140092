// Package config loads the environment knobs spec §6 names (tenant field
// name, strict mode, exempt object list, preferred language + fallback
// list, default datasource name) plus the ambient logging/server knobs a
// deployed engine needs, from a YAML file overridable by environment
// variables. Grounded on r3e-network-service_layer/pkg/config's
// YAML-plus-env shape, reduced to the subset gopkg.in/yaml.v3 (already a
// teacher/metadata-loader dependency) can cover without pulling in an
// env-decoding library the pack does not otherwise use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TenancyConfig mirrors tenancy.Config's environment-exposed knobs (spec
// §4.7, §6); the engine wiring layer (examples/crm) translates this into
// a tenancy.Config value so the config package never imports tenancy.
type TenancyConfig struct {
	Field                string   `yaml:"field" env:"TENANCY_FIELD"`
	Strict               bool     `yaml:"strict" env:"TENANCY_STRICT"`
	Exempt               []string `yaml:"exempt" env:"TENANCY_EXEMPT"`
	EnableAudit          bool     `yaml:"enable_audit" env:"TENANCY_ENABLE_AUDIT"`
	AuditCap             int      `yaml:"audit_cap" env:"TENANCY_AUDIT_CAP"`
	ThrowOnMissingTenant bool     `yaml:"throw_on_missing_tenant" env:"TENANCY_THROW_ON_MISSING"`
	RetentionCron        string   `yaml:"retention_cron" env:"TENANCY_RETENTION_CRON"`
	RetentionKeep        int      `yaml:"retention_keep" env:"TENANCY_RETENTION_KEEP"`
}

// ValidationConfig covers the language knobs spec §6 names: "preferred
// language and fallback list for validation messages".
type ValidationConfig struct {
	PreferredLang string   `yaml:"preferred_lang" env:"VALIDATION_PREFERRED_LANG"`
	FallbackLangs []string `yaml:"fallback_langs" env:"VALIDATION_FALLBACK_LANGS"`
}

// DatasourceConfig names one configured driver instance (spec §6 "default
// datasource name"; §4.3 datasource binding).
type DatasourceConfig struct {
	Name    string `yaml:"name"`
	Dialect string `yaml:"dialect" env:"-"` // "postgres", "mysql", "sqlite", "memory"
	DSN     string `yaml:"dsn"`
}

// ServerConfig controls the REST/RPC transport listener.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"SERVER_ADDR"`
}

// AuthConfig controls bearer-token session extraction (SPEC_FULL.md §D.3).
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// LoggingConfig controls the logging package's logrus instance.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// CacheConfig selects and configures objectcore.Cache.
type CacheConfig struct {
	Backend  string `yaml:"backend" env:"CACHE_BACKEND"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url" env:"CACHE_REDIS_URL"`
}

// Config is the top-level configuration document.
type Config struct {
	Server      ServerConfig        `yaml:"server"`
	Logging     LoggingConfig       `yaml:"logging"`
	Auth        AuthConfig          `yaml:"auth"`
	Cache       CacheConfig         `yaml:"cache"`
	Tenancy     TenancyConfig       `yaml:"tenancy"`
	Validation  ValidationConfig    `yaml:"validation"`
	Datasources []DatasourceConfig  `yaml:"datasources"`
	DefaultDS   string              `yaml:"default_datasource" env:"DEFAULT_DATASOURCE"`
}

// Default returns a Config populated with the engine's documented
// defaults, matching tenancy.Config/validation.Engine's own zero-knob
// behaviour so an empty file still produces a working deployment.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Cache:   CacheConfig{Backend: "memory"},
		Tenancy: TenancyConfig{
			Field:                "tenant_id",
			Strict:               true,
			ThrowOnMissingTenant: true,
			AuditCap:             1000,
		},
		Validation: ValidationConfig{
			PreferredLang: "en",
			FallbackLangs: []string{"en"},
		},
		Datasources: []DatasourceConfig{{Name: "default", Dialect: "memory"}},
		DefaultDS:   "default",
	}
}

// Load reads a YAML document from path onto Default(), then applies
// environment variable overrides (spec §6 "Environment knobs").
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays the environment variables named in each field's `env`
// tag above, by hand rather than through an env-decoding reflection
// library: the knob set is small and fixed (spec §6), so a short explicit
// list keeps the dependency surface to the yaml.v3 the metadata loader
// already carries.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("CACHE_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("TENANCY_FIELD"); v != "" {
		cfg.Tenancy.Field = v
	}
	if v := os.Getenv("TENANCY_STRICT"); v != "" {
		cfg.Tenancy.Strict = parseBool(v, cfg.Tenancy.Strict)
	}
	if v := os.Getenv("TENANCY_EXEMPT"); v != "" {
		cfg.Tenancy.Exempt = strings.Split(v, ",")
	}
	if v := os.Getenv("TENANCY_ENABLE_AUDIT"); v != "" {
		cfg.Tenancy.EnableAudit = parseBool(v, cfg.Tenancy.EnableAudit)
	}
	if v := os.Getenv("TENANCY_AUDIT_CAP"); v != "" {
		cfg.Tenancy.AuditCap = parseInt(v, cfg.Tenancy.AuditCap)
	}
	if v := os.Getenv("TENANCY_THROW_ON_MISSING"); v != "" {
		cfg.Tenancy.ThrowOnMissingTenant = parseBool(v, cfg.Tenancy.ThrowOnMissingTenant)
	}
	if v := os.Getenv("TENANCY_RETENTION_CRON"); v != "" {
		cfg.Tenancy.RetentionCron = v
	}
	if v := os.Getenv("TENANCY_RETENTION_KEEP"); v != "" {
		cfg.Tenancy.RetentionKeep = parseInt(v, cfg.Tenancy.RetentionKeep)
	}
	if v := os.Getenv("VALIDATION_PREFERRED_LANG"); v != "" {
		cfg.Validation.PreferredLang = v
	}
	if v := os.Getenv("VALIDATION_FALLBACK_LANGS"); v != "" {
		cfg.Validation.FallbackLangs = strings.Split(v, ",")
	}
	if v := os.Getenv("DEFAULT_DATASOURCE"); v != "" {
		cfg.DefaultDS = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
