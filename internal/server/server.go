package server

import (
	"fmt"

	"medibook/internal/bookings/events"
	bookingshandler "medibook/internal/bookings/handler"
	bookingsservice "medibook/internal/bookings/service"
	bookingsvalidator "medibook/internal/bookings/validator"
	slotshandler "medibook/internal/slots/handler"
	slotsservice "medibook/internal/slots/service"
	slotsvalidator "medibook/internal/slots/validator"
	"medibook/internal/storage"
	"medibook/pkg/config"
	"medibook/pkg/contracts"
	"medibook/pkg/kafka"
	kafka_config "medibook/pkg/kafka/config"
	kafkamiddleware "medibook/pkg/kafka/middleware"
	"medibook/pkg/metrics"
	"medibook/pkg/sealer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Components are the handlers and background workers of one process.
type Components struct {
	Handlers []contracts.Handler
	Stoppers []contracts.Stopper
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Availability wires the slot management and availability query API.
func Availability(cfg *config.Config, backend *storage.Backend, m *metrics.BookingMetrics) *Components {
	expander := slotsservice.NewExpander(cfg.Location, cfg.MaxGenerationDays, cfg.DefaultSlotCapacity)
	slots := slotsservice.NewSlotService(backend.Slots, expander, slotsvalidator.NewSlotValidator(cfg.Log), m, cfg)
	availability := slotsservice.NewAvailabilityService(backend.Slots, m, cfg)

	cfg.Log.Info("Availability services initialized", "backend", backend.Name)
	return &Components{
		Handlers: []contracts.Handler{slotshandler.NewSlotHandler(slots, availability, cfg.Log)},
	}
}

// Bookings wires the reservation lock and booking commit API together with
// the lock sweeper and the appointment event publisher.
func Bookings(cfg *config.Config, backend *storage.Backend, m *metrics.BookingMetrics, reg prometheus.Registerer) (*Components, error) {
	tokens, err := sealer.New(cfg.CancellationTokenKey)
	if err != nil {
		return nil, fmt.Errorf("cancellation token key: %w", err)
	}

	publisher, producer, err := newPublisher(cfg, reg)
	if err != nil {
		return nil, err
	}

	v := bookingsvalidator.NewBookingValidator(cfg.Log)
	locks := bookingsservice.NewLockService(backend.Locks, backend.Slots, v, m, cfg)
	committer := bookingsservice.NewBookingCommitter(backend.Slots, backend.Appointments, backend.Locks, tokens, publisher, v, m, cfg)

	sweeper := bookingsservice.NewLockSweeper(locks, cfg.LockSweepInterval, cfg.StoreTimeout, cfg.Log)
	sweeper.Start()

	components := &Components{
		Handlers: []contracts.Handler{bookingshandler.NewBookingHandler(locks, committer, cfg.Log)},
		Stoppers: []contracts.Stopper{sweeper},
	}
	if producer != nil {
		components.Stoppers = append(components.Stoppers, producerStopper{producer: producer, cfg: cfg})
	}

	cfg.Log.Info("Booking services initialized", "backend", backend.Name, "lock_backend", cfg.LockBackend)
	return components, nil
}

func newPublisher(cfg *config.Config, reg prometheus.Registerer) (events.Publisher, *kafka.Producer, error) {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		return nil, nil, err
	}
	kafkaCfg.LogConfiguration(cfg.Log)
	if !kafkaCfg.Enabled() {
		return events.NewNoopPublisher(), nil, nil
	}

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafkamiddleware.NewProducerMetrics(reg).Middleware())
	}
	return events.NewKafkaPublisher(producer, cfg.Log), producer, nil
}

type producerStopper struct {
	producer *kafka.Producer
	cfg      *config.Config
}

func (s producerStopper) Stop() {
	if err := s.producer.Close(); err != nil {
		s.cfg.Log.Error("Failed to close Kafka producer", "error", err)
	}
}
