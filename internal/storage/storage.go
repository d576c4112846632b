package storage

import (
	"fmt"

	bookingsrepository "medibook/internal/bookings/repository"
	slotsrepository "medibook/internal/slots/repository"
	"medibook/internal/storage/memory"
	"medibook/pkg/config"
)

// Backend bundles the repositories of one storage backend. Slots and
// appointments always share a store so a booking transaction spans both.
type Backend struct {
	Name         string
	Slots        slotsrepository.SlotRepository
	Appointments bookingsrepository.AppointmentRepository
	Locks        bookingsrepository.ReservationLockRepository
}

// Open builds the repositories selected by cfg. Connections must already be
// established with cfg.Connect; the memory backend needs none.
func Open(cfg *config.Config) (*Backend, error) {
	var backend *Backend

	switch cfg.StorageBackend {
	case config.BackendMemory:
		store := memory.NewStore()
		backend = &Backend{
			Slots:        store.Slots(),
			Appointments: store.Appointments(),
			Locks:        store.Locks(),
		}
	case config.BackendMongo:
		if cfg.Client.Mongo == nil {
			return nil, fmt.Errorf("storage backend %q is not connected", cfg.StorageBackend)
		}
		backend = &Backend{
			Slots:        slotsrepository.NewMongoSlotRepository(cfg),
			Appointments: bookingsrepository.NewMongoAppointmentRepository(cfg),
			Locks:        bookingsrepository.NewMongoLockRepository(cfg),
		}
	case config.BackendPostgres:
		pool := cfg.Client.Postgres
		if pool == nil {
			return nil, fmt.Errorf("storage backend %q is not connected", cfg.StorageBackend)
		}
		backend = &Backend{
			Slots:        slotsrepository.NewPostgresSlotRepository(cfg, pool),
			Appointments: bookingsrepository.NewPostgresAppointmentRepository(cfg, pool),
			Locks:        bookingsrepository.NewPostgresLockRepository(cfg, pool),
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	backend.Name = cfg.StorageBackend

	if cfg.LockBackend == config.LockBackendRedis {
		if cfg.Client.Redis == nil {
			return nil, fmt.Errorf("lock backend %q is not connected", cfg.LockBackend)
		}
		backend.Locks = bookingsrepository.NewRedisLockRepository(cfg.Client.Redis)
	}

	return backend, nil
}
