package config

const (
	EnvStorageBackend = "STORAGE_BACKEND"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresURL      = "POSTGRES_URL"
	EnvPostgresMaxConns = "POSTGRES_MAX_CONNS"

	EnvLockBackend       = "LOCK_BACKEND"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvLockDefaultTTL    = "LOCK_DEFAULT_TTL"
	EnvLockMaxTTL        = "LOCK_MAX_TTL"
	EnvLockSweepInterval = "LOCK_SWEEP_INTERVAL"

	EnvWorkingHoursLocation = "WORKING_HOURS_LOCATION"
	EnvDefaultSlotCapacity  = "DEFAULT_SLOT_CAPACITY"
	EnvMaxGenerationDays    = "MAX_GENERATION_DAYS"
	EnvMaxQueryRangeDays    = "MAX_QUERY_RANGE_DAYS"

	EnvCancellationTokenKey = "CANCELLATION_TOKEN_KEY"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvStoreTimeout    = "STORE_TIMEOUT"
)
