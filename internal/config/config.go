package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at configPath, applies defaults and environment
// overrides, and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes content without touching the filesystem. An empty document
// yields the defaults.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:      defaultPort,
		Env:       defaultEnv,
		Store:     defaultStore,
		PublicURL: defaultPublicURL,
		Mongo: MongoRuntimeConfig{
			URI:            defaultMongoURI,
			Database:       defaultMongoDatabase,
			TimeoutSeconds: defaultMongoTimeout,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Admin: AdminConfig{SessionTTLHours: defaultSessionTTLHours},
		Editor: EditorConfig{
			DebounceMS:       defaultDebounceMS,
			HistoryLimit:     defaultHistoryLimit,
			TextHistoryLimit: defaultTextHistoryLimit,
		},
		MeiliSearch: MeiliSearchRuntimeConfig{
			Host:      defaultMeiliHost,
			Port:      defaultMeiliPort,
			IndexName: defaultMeiliIndex,
		},
		Backup: BackupConfig{
			IntervalHours: defaultBackupInterval,
			S3:            S3Config{Region: defaultS3Region},
		},
	}
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Store); v != "" {
		cfg.Store = v
	}
	cfg.Mongo = applyRawMongoConfig(cfg.Mongo, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Backups); v != "" {
		cfg.Paths.Backups = v
	}
	if v := strings.TrimSpace(raw.BackupDir); v != "" {
		cfg.Paths.Backups = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.JWTSecretLegacy); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.PublicURL); v != "" {
		cfg.PublicURL = v
	}

	if v := strings.TrimSpace(raw.Admin.PasswordHash); v != "" {
		cfg.Admin.PasswordHash = v
	}
	if v := strings.TrimSpace(raw.Admin.UniversalPasswordHash); v != "" {
		cfg.Admin.UniversalPasswordHash = v
	}
	if raw.Admin.SessionTTLHours != 0 {
		cfg.Admin.SessionTTLHours = raw.Admin.SessionTTLHours
	}

	if raw.Editor.DebounceMS != 0 {
		cfg.Editor.DebounceMS = raw.Editor.DebounceMS
	}
	if raw.Editor.HistoryLimit != 0 {
		cfg.Editor.HistoryLimit = raw.Editor.HistoryLimit
	}
	if raw.Editor.TextHistoryLimit != 0 {
		cfg.Editor.TextHistoryLimit = raw.Editor.TextHistoryLimit
	}

	meili := cfg.MeiliSearch
	if raw.MeiliSearch.Enable != nil {
		meili.Enable = *raw.MeiliSearch.Enable
	}
	if v := strings.TrimSpace(raw.MeiliSearch.URL); v != "" {
		meili.URL = v
	}
	if v := strings.TrimSpace(raw.MeiliSearch.Host); v != "" {
		meili.Host = v
	}
	if raw.MeiliSearch.Port != 0 {
		meili.Port = raw.MeiliSearch.Port
	}
	if v := strings.TrimSpace(raw.MeiliSearch.APIKey); v != "" {
		meili.APIKey = v
	}
	if v := strings.TrimSpace(raw.MeiliSearch.MasterKey); v != "" {
		meili.APIKey = v
	}
	if v := strings.TrimSpace(raw.MeiliSearch.IndexName); v != "" {
		meili.IndexName = v
	}
	cfg.MeiliSearch = normalizeMeiliConfig(meili)

	cfg.Backup = applyRawBackupConfig(cfg.Backup, raw.Backup)

	cfg.RedisURL = cfg.Redis.URLValue()
	if v := normalizeRedisRawURL(raw.RedisURL); v != "" {
		cfg.RedisURL = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.PublicURL = normalizePublicURL(cfg.PublicURL)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawMongoConfig(current MongoRuntimeConfig, raw rawAppConfig) MongoRuntimeConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Mongo.URI); v != "" {
		cfg.URI = v
	}
	if v := strings.TrimSpace(raw.MongoURI); v != "" {
		cfg.URI = v
	}
	if v := strings.TrimSpace(raw.Mongo.Database); v != "" {
		cfg.Database = v
	}
	if v := strings.TrimSpace(raw.Mongo.DB); v != "" {
		cfg.Database = v
	}
	if raw.Mongo.TimeoutSeconds != 0 {
		cfg.TimeoutSeconds = raw.Mongo.TimeoutSeconds
	}
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

func applyRawBackupConfig(current BackupConfig, raw rawBackupConfig) BackupConfig {
	cfg := current
	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if raw.IntervalHours != 0 {
		cfg.IntervalHours = raw.IntervalHours
	}
	if v := strings.TrimSpace(raw.S3.Endpoint); v != "" {
		cfg.S3.Endpoint = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.S3.Region); v != "" {
		cfg.S3.Region = v
	}
	if v := strings.TrimSpace(raw.S3.Bucket); v != "" {
		cfg.S3.Bucket = v
	}
	if v := strings.TrimSpace(raw.S3.AccessKeyID); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.S3.SecretAccessKey); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if raw.S3.PathStyle != nil {
		cfg.S3.PathStyle = *raw.S3.PathStyle
	}
	return cfg
}

// applyEnvOverrides lets deployments keep secrets out of the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(envAdminPasswordHash)); v != "" {
		cfg.Admin.PasswordHash = v
	}
	if v := strings.TrimSpace(os.Getenv(envJWTSecret)); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(envMongoURI)); v != "" {
		cfg.Mongo.URI = v
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Store != StoreMongo && cfg.Store != StoreMemory {
		return fmt.Errorf("invalid store %q, expected %q or %q", cfg.Store, StoreMongo, StoreMemory)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if cfg.MeiliSearch.Port < 1 || cfg.MeiliSearch.Port > 65535 {
		return fmt.Errorf("invalid meilisearch.port %d, expected 1-65535", cfg.MeiliSearch.Port)
	}
	if cfg.Mongo.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid mongo.timeout_seconds %d, expected >= 1", cfg.Mongo.TimeoutSeconds)
	}
	if cfg.Editor.DebounceMS < 1 {
		return fmt.Errorf("invalid editor.debounce_ms %d, expected >= 1", cfg.Editor.DebounceMS)
	}
	if cfg.Editor.HistoryLimit < 1 || cfg.Editor.TextHistoryLimit < 1 {
		return errors.New("editor history limits must be >= 1")
	}
	if cfg.Admin.SessionTTLHours < 1 {
		return fmt.Errorf("invalid admin.session_ttl_hours %d, expected >= 1", cfg.Admin.SessionTTLHours)
	}
	if cfg.Backup.IntervalHours < 1 {
		return fmt.Errorf("invalid backup.interval_hours %d, expected >= 1", cfg.Backup.IntervalHours)
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) MongoTimeout() time.Duration {
	return time.Duration(c.Mongo.TimeoutSeconds) * time.Second
}

func (c *AppConfig) DebounceDelay() time.Duration {
	return time.Duration(c.Editor.DebounceMS) * time.Millisecond
}

func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Admin.SessionTTLHours) * time.Hour
}

func (c *AppConfig) BackupInterval() time.Duration {
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

// DiaryURL is the public viewer address of a diary.
func (c *AppConfig) DiaryURL(id string) string {
	return c.PublicURL + "/diary/" + id
}
