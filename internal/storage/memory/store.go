// Package memory is an in-process storage backend for development and tests.
// A single mutex serializes all access; a transaction holds it for its whole
// duration and restores a snapshot when it fails.
package memory

import (
	"context"
	"sync"
	"time"

	"medibook/pkg/db"
	"medibook/pkg/model"
)

type txKey struct{}

type Store struct {
	mu           sync.Mutex
	slots        map[string]model.AvailabilitySlot
	appointments map[string]model.Appointment
	locks        map[string]model.ReservationLock
}

func NewStore() *Store {
	return &Store{
		slots:        make(map[string]model.AvailabilitySlot),
		appointments: make(map[string]model.Appointment),
		locks:        make(map[string]model.ReservationLock),
	}
}

type snapshot struct {
	slots        map[string]model.AvailabilitySlot
	appointments map[string]model.Appointment
	locks        map[string]model.ReservationLock
}

func copyMap[V any](m map[string]V) map[string]V {
	c := make(map[string]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		slots:        copyMap(s.slots),
		appointments: copyMap(s.appointments),
		locks:        copyMap(s.locks),
	}
}

func (s *Store) restore(snap snapshot) {
	s.slots = snap.slots
	s.appointments = snap.appointments
	s.locks = snap.locks
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// acquire takes the store mutex unless ctx already runs inside a
// transaction that holds it.
func (s *Store) acquire(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) TransactionManager() db.TransactionManager {
	return s
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
