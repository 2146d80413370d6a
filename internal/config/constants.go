package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	StoreMongo  = "mongo"
	StoreMemory = "memory"

	defaultPort             = 2333
	defaultEnv              = "development"
	defaultStore            = StoreMongo
	defaultMongoURI         = "mongodb://127.0.0.1:27017"
	defaultMongoDatabase    = "diary"
	defaultMongoTimeout     = 10
	defaultPublicURL        = "http://localhost:2333"
	defaultSessionTTLHours  = 24 * 7
	defaultDebounceMS       = 450
	defaultHistoryLimit     = 10
	defaultTextHistoryLimit = 100
	defaultMeiliHost        = "localhost"
	defaultMeiliPort        = 7700
	defaultMeiliIndex       = "diary_situations"
	defaultRedisHost        = "localhost"
	defaultRedisPort        = 6379
	defaultRedisDB          = 0
	defaultBackupInterval   = 24
	defaultS3Region         = "us-east-1"

	envAdminPasswordHash = "DIARY_ADMIN_PASSWORD_HASH"
	envJWTSecret         = "DIARY_JWT_SECRET"
	envMongoURI          = "DIARY_MONGO_URI"
)
