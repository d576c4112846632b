package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"medibook/pkg/client"
	"medibook/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	StorageBackend string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresURL      string
	PostgresMaxConns int

	LockBackend       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	LockDefaultTTL    time.Duration
	LockMaxTTL        time.Duration
	LockSweepInterval time.Duration

	WorkingHoursLocation string
	Location             *time.Location
	DefaultSlotCapacity  int
	MaxGenerationDays    int
	MaxQueryRangeDays    int

	CancellationTokenKey string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	StoreTimeout    time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment (and a .env file when present), validates it
// and exits the process on invalid configuration.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := FromEnv(serviceName)
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv(serviceName string) *Config {
	cfg := &Config{
		StorageBackend: getEnvStr(EnvStorageBackend, DefaultStorageBackend),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresURL:      getEnvStr(EnvPostgresURL, DefaultPostgresURL),
		PostgresMaxConns: getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),

		LockBackend:       getEnvStr(EnvLockBackend, DefaultLockBackend),
		RedisAddr:         getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:     getEnvStr(EnvRedisPassword, ""),
		RedisDB:           getEnvNum(EnvRedisDB, DefaultRedisDB),
		LockDefaultTTL:    getEnvDuration(EnvLockDefaultTTL, DefaultLockDefaultTTL),
		LockMaxTTL:        getEnvDuration(EnvLockMaxTTL, DefaultLockMaxTTL),
		LockSweepInterval: getEnvDuration(EnvLockSweepInterval, DefaultLockSweepInterval),

		WorkingHoursLocation: getEnvStr(EnvWorkingHoursLocation, DefaultWorkingHoursLocation),
		DefaultSlotCapacity:  getEnvNum(EnvDefaultSlotCapacity, DefaultSlotCapacity),
		MaxGenerationDays:    getEnvNum(EnvMaxGenerationDays, DefaultMaxGenerationDays),
		MaxQueryRangeDays:    getEnvNum(EnvMaxQueryRangeDays, DefaultMaxQueryRangeDays),

		CancellationTokenKey: getEnvStr(EnvCancellationTokenKey, DefaultCancellationTokenKey),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),
		StoreTimeout:    getEnvDuration(EnvStoreTimeout, DefaultStoreTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    getEnvStr(EnvLogFormat, DefaultLogFormat),
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	cfg.Location, _ = time.LoadLocation(cfg.WorkingHoursLocation)
	return cfg
}

// Connect opens the connections required by the selected backends.
func (cfg *Config) Connect() {
	switch cfg.StorageBackend {
	case BackendMongo:
		cfg.SetMongo()
	case BackendPostgres:
		cfg.SetPostgres()
	}
	if cfg.LockBackend == LockBackendRedis {
		cfg.SetRedis()
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresURL, int32(cfg.PostgresMaxConns), cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageBackend {
	case BackendMongo:
		if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case BackendPostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
			errors = append(errors, fmt.Sprintf("PostgresURL must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresURL)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
	case BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("StorageBackend must be one of mongo, postgres, memory, got: %s", cfg.StorageBackend))
	}

	switch cfg.LockBackend {
	case LockBackendStore:
	case LockBackendRedis:
		if cfg.RedisAddr == "" {
			errors = append(errors, "RedisAddr cannot be empty when LockBackend is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of store, redis, got: %s", cfg.LockBackend))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.LockDefaultTTL <= 0 {
		errors = append(errors, fmt.Sprintf("LockDefaultTTL must be positive, got: %s", cfg.LockDefaultTTL))
	}
	if cfg.LockMaxTTL < cfg.LockDefaultTTL {
		errors = append(errors, fmt.Sprintf("LockMaxTTL (%s) must be >= LockDefaultTTL (%s)", cfg.LockMaxTTL, cfg.LockDefaultTTL))
	}
	if cfg.LockSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("LockSweepInterval must be positive, got: %s", cfg.LockSweepInterval))
	}

	if cfg.Location == nil {
		errors = append(errors, fmt.Sprintf("WorkingHoursLocation must be a valid IANA time zone, got: %s", cfg.WorkingHoursLocation))
	}
	if cfg.DefaultSlotCapacity <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultSlotCapacity must be positive, got: %d", cfg.DefaultSlotCapacity))
	}
	if cfg.MaxGenerationDays <= 0 {
		errors = append(errors, fmt.Sprintf("MaxGenerationDays must be positive, got: %d", cfg.MaxGenerationDays))
	}
	if cfg.MaxQueryRangeDays <= 0 {
		errors = append(errors, fmt.Sprintf("MaxQueryRangeDays must be positive, got: %d", cfg.MaxQueryRangeDays))
	}

	if key, err := base64.StdEncoding.DecodeString(cfg.CancellationTokenKey); err != nil || len(key) != 32 {
		errors = append(errors, "CancellationTokenKey must be a base64-encoded 32-byte key")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("StoreTimeout must be positive, got: %s", cfg.StoreTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_backend", cfg.StorageBackend,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"postgres_url", redactURI(cfg.PostgresURL),
		"postgres_max_conns", cfg.PostgresMaxConns,
		"lock_backend", cfg.LockBackend,
		"redis_addr", cfg.RedisAddr,
		"lock_default_ttl", cfg.LockDefaultTTL,
		"lock_max_ttl", cfg.LockMaxTTL,
		"lock_sweep_interval", cfg.LockSweepInterval,
		"working_hours_location", cfg.WorkingHoursLocation,
		"default_slot_capacity", cfg.DefaultSlotCapacity,
		"max_generation_days", cfg.MaxGenerationDays,
		"max_query_range_days", cfg.MaxQueryRangeDays,
		"cancellation_key_is_default", cfg.CancellationTokenKey == DefaultCancellationTokenKey,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"store_timeout", cfg.StoreTimeout,
	)

	if cfg.CancellationTokenKey == DefaultCancellationTokenKey {
		cfg.Log.Warn("Using the development cancellation token key; set " + EnvCancellationTokenKey)
	}
}

func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`([a-z+]+://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
