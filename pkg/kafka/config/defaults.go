package kafka_config

import "time"

const (
	// Empty broker list disables event publishing.
	DefaultKafkaBrokers = ""

	DefaultAppointmentsTopic = "appointments"
	DefaultDLQTopic          = "appointments.dlq"

	// Producer defaults
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // Require all replicas
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false

	DefaultEnableMiddleware = true
)
