package config

import (
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig

	redisOnce   sync.Once
	redisConfig *RedisConfig

	badgerOnce   sync.Once
	badgerConfig *BadgerConfig

	appOnce   sync.Once
	appConfig *AppConfig
)

// ServerConfig covers the gin control surface.
type ServerConfig struct {
	Port            string
	Mode            string // gin mode: debug, release, test
	MaxUploadSize   int64  // bytes
	ShutdownTimeout time.Duration
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()

		serverConfig = &ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Mode:            getEnv("GIN_MODE", "release"),
			MaxUploadSize:   int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 50)) << 20,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		}
	})
	return serverConfig
}

// RedisConfig is shared by the task queue and the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()

		redisConfig = &RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		}
	})
	return redisConfig
}

// BadgerConfig locates the embedded datastore.
type BadgerConfig struct {
	Dir      string
	InMemory bool
}

func GetBadgerConfig() *BadgerConfig {
	badgerOnce.Do(func() {
		loadEnv()

		badgerConfig = &BadgerConfig{
			Dir:      getEnv("BADGER_DIR", "data/badger"),
			InMemory: getEnvBool("BADGER_IN_MEMORY", false),
		}
	})
	return badgerConfig
}

// AppConfig selects pluggable backends and ambient settings.
type AppConfig struct {
	StorageType    string // s3, minio or memory
	OCRProvider    string // textract or local
	LogLevel       string
	PipelineConfig string        // optional YAML tuning file, empty for defaults
	BlobRetention  time.Duration // 0 disables the cleanup sweep
}

func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadEnv()

		appConfig = &AppConfig{
			StorageType:    getEnv("STORAGE_TYPE", "minio"),
			OCRProvider:    getEnv("OCR_PROVIDER", "local"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			PipelineConfig: getEnv("PIPELINE_CONFIG", ""),
			BlobRetention:  getEnvDuration("BLOB_RETENTION", 0),
		}
	})
	return appConfig
}
