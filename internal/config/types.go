package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                      `yaml:"port"`
	Env            string                   `yaml:"env"`   // "development" | "production"
	Store          string                   `yaml:"store"` // "mongo" | "memory"
	Mongo          MongoRuntimeConfig       `yaml:"mongo"`
	Redis          RedisRuntimeConfig       `yaml:"redis"`
	RedisURL       string                   `yaml:"redis_url"`
	Paths          RuntimePathsConfig       `yaml:"paths"`
	AllowedOrigins []string                 `yaml:"allowed_origins"`
	JWTSecret      string                   `yaml:"jwt_secret"`
	Timezone       string                   `yaml:"timezone"`
	PublicURL      string                   `yaml:"public_url"`
	Admin          AdminConfig              `yaml:"admin"`
	Editor         EditorConfig             `yaml:"editor"`
	MeiliSearch    MeiliSearchRuntimeConfig `yaml:"meilisearch"`
	Backup         BackupConfig             `yaml:"backup"`
}

type MongoRuntimeConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// AdminConfig carries the bcrypt hashes used for admin login and the
// universal diary password. Values stored in the settings collection win.
type AdminConfig struct {
	PasswordHash          string `yaml:"password_hash"`
	UniversalPasswordHash string `yaml:"universal_password_hash"`
	SessionTTLHours       int    `yaml:"session_ttl_hours"`
}

type EditorConfig struct {
	DebounceMS       int `yaml:"debounce_ms"`
	HistoryLimit     int `yaml:"history_limit"`
	TextHistoryLimit int `yaml:"text_history_limit"`
}

type MeiliSearchRuntimeConfig struct {
	Enable    bool   `yaml:"enable"`
	URL       string `yaml:"url"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	IndexName string `yaml:"index_name"`
}

type BackupConfig struct {
	Enable        bool     `yaml:"enable"`
	IntervalHours int      `yaml:"interval_hours"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Enabled reports whether uploads are configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type RuntimePathsConfig struct {
	Logs    string `yaml:"logs"`
	Backups string `yaml:"backups"`
}

type rawAppConfig struct {
	Port               int             `yaml:"port"`
	Env                string          `yaml:"env"`
	NodeEnv            string          `yaml:"node_env"`
	Store              string          `yaml:"store"`
	Mongo              rawMongoConfig  `yaml:"mongo"`
	MongoURI           string          `yaml:"mongo_uri"`
	Redis              rawRedisConfig  `yaml:"redis"`
	RedisURL           string          `yaml:"redis_url"`
	Paths              rawPathsConfig  `yaml:"paths"`
	LogDir             string          `yaml:"log_dir"`
	BackupDir          string          `yaml:"backup_dir"`
	AllowedOrigins     []string        `yaml:"allowed_origins"`
	CORSAllowedOrigins []string        `yaml:"cors_allowed_origins"`
	JWTSecret          string          `yaml:"jwt_secret"`
	JWTSecretLegacy    string          `yaml:"jwtSecret"`
	Timezone           string          `yaml:"timezone"`
	TZ                 string          `yaml:"tz"`
	PublicURL          string          `yaml:"public_url"`
	Admin              rawAdminConfig  `yaml:"admin"`
	Editor             rawEditorConfig `yaml:"editor"`
	MeiliSearch        rawMeiliConfig  `yaml:"meilisearch"`
	Backup             rawBackupConfig `yaml:"backup"`
}

type rawMongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	DB             string `yaml:"db"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawAdminConfig struct {
	PasswordHash          string `yaml:"password_hash"`
	UniversalPasswordHash string `yaml:"universal_password_hash"`
	SessionTTLHours       int    `yaml:"session_ttl_hours"`
}

type rawEditorConfig struct {
	DebounceMS       int `yaml:"debounce_ms"`
	HistoryLimit     int `yaml:"history_limit"`
	TextHistoryLimit int `yaml:"text_history_limit"`
}

type rawMeiliConfig struct {
	Enable    *bool  `yaml:"enable"`
	URL       string `yaml:"url"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	MasterKey string `yaml:"master_key"`
	IndexName string `yaml:"index_name"`
}

type rawBackupConfig struct {
	Enable        *bool       `yaml:"enable"`
	IntervalHours int         `yaml:"interval_hours"`
	S3            rawS3Config `yaml:"s3"`
}

type rawS3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       *bool  `yaml:"path_style"`
}

type rawPathsConfig struct {
	Logs    string `yaml:"logs"`
	Backups string `yaml:"backups"`
}
