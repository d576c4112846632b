package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/internal/bookings/events"
	"medibook/internal/bookings/validator"
	slotsservice "medibook/internal/slots/service"
	slotsvalidator "medibook/internal/slots/validator"
	"medibook/internal/storage/memory"
	"medibook/pkg/config"
	apperrors "medibook/pkg/errors"
	"medibook/pkg/locale"
	"medibook/pkg/logger"
	"medibook/pkg/model"
	"medibook/pkg/sanitizer"
	"medibook/pkg/sealer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ *model.Appointment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

type fixture struct {
	store     *memory.Store
	cfg       *config.Config
	clock     *fakeClock
	publisher *recordingPublisher
	committer *committer
	locks     *lockService
}

var patient = model.Identity{UserID: "patient-1", Role: model.RolePatient}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Log:                 logger.Discard(),
		Location:            time.UTC,
		DefaultSlotCapacity: 1,
		MaxGenerationDays:   366,
		MaxQueryRangeDays:   31,
		LockDefaultTTL:      5 * time.Minute,
		LockMaxTTL:          15 * time.Minute,
		StoreTimeout:        time.Second,
	}
	tokens, err := sealer.New(testTokenKey)
	require.NoError(t, err)

	store := memory.NewStore()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	publisher := &recordingPublisher{}
	v := validator.NewBookingValidator(cfg.Log)

	c := NewBookingCommitter(store.Slots(), store.Appointments(), store.Locks(), tokens, publisher, v, nil, cfg).(*committer)
	c.now = clock.Now

	return &fixture{
		store:     store,
		cfg:       cfg,
		clock:     clock,
		publisher: publisher,
		committer: c,
		locks:     newLockService(store.Locks(), store.Slots(), v, nil, cfg, clock.Now),
	}
}

func (f *fixture) slot(t *testing.T, practitionerID string, start time.Time, capacity int) *model.AvailabilitySlot {
	t.Helper()
	slot := &model.AvailabilitySlot{
		PractitionerID: practitionerID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       capacity,
		IsActive:       true,
	}
	require.NoError(t, f.store.Slots().Create(context.Background(), slot))
	return slot
}

func (f *fixture) live(t *testing.T, slotID string) int {
	t.Helper()
	n, err := f.store.Slots().CountLiveAppointments(context.Background(), slotID)
	require.NoError(t, err)
	return n
}

func at(d, h, m int) time.Time {
	return time.Date(2026, 5, d, h, m, 0, 0, time.UTC)
}

func slotRequest(slotID string) *model.CommitRequest {
	return &model.CommitRequest{
		SlotID:  slotID,
		Patient: model.PatientInfo{Name: "Jane Doe", Email: "Jane@Example.com"},
	}
}

func rangeRequest(practitionerID string, start, end time.Time) *model.CommitRequest {
	return &model.CommitRequest{
		PractitionerID: practitionerID,
		StartTime:      &start,
		EndTime:        &end,
		Patient:        model.PatientInfo{Name: "Jane Doe"},
	}
}

func TestCommit_CapacityHoldsUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 3)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		full      int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := model.Identity{UserID: fmt.Sprintf("patient-%d", i), Role: model.RolePatient}
			_, err := f.committer.Commit(context.Background(), slotRequest(slot.ID), caller)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.HasCode(err, apperrors.CodeSlotFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, callers-3, full)
	assert.Equal(t, 3, f.live(t, slot.ID))
}

func TestCommit_SlotBound(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	appt, err := f.committer.Commit(context.Background(), slotRequest(slot.ID), patient)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, "dr-smith", appt.PractitionerID)
	assert.Equal(t, "patient-1", appt.PatientID)
	assert.True(t, appt.BoundTo(slot.ID))
	assert.Equal(t, slot.StartTime, appt.StartTime)
	assert.Equal(t, slot.EndTime, appt.EndTime)
	assert.Equal(t, "jane@example.com", appt.Patient.Email)
	assert.NotEmpty(t, appt.CancellationToken)
	assert.Equal(t, []string{events.TypeAppointmentBooked}, f.publisher.events)

	_, err = f.committer.Commit(context.Background(), slotRequest(slot.ID), patient)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotFull))
}

func TestCommit_RangeOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.committer.Commit(ctx, rangeRequest("dr-smith", at(4, 10, 0), at(4, 11, 0)), patient)
	require.NoError(t, err)

	_, err = f.committer.Commit(ctx, rangeRequest("dr-smith", at(4, 10, 30), at(4, 11, 30)), patient)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTimeConflict))

	_, err = f.committer.Commit(ctx, rangeRequest("dr-smith", at(4, 11, 0), at(4, 12, 0)), patient)
	assert.NoError(t, err)

	_, err = f.committer.Commit(ctx, rangeRequest("dr-jones", at(4, 10, 30), at(4, 11, 30)), patient)
	assert.NoError(t, err, "other practitioners are independent")
}

func TestCommit_SlotConflictsWithRangeBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 30), 2)

	_, err := f.committer.Commit(ctx, rangeRequest("dr-smith", at(4, 9, 0), at(4, 10, 0)), patient)
	require.NoError(t, err)

	_, err = f.committer.Commit(ctx, slotRequest(slot.ID), patient)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTimeConflict))
	assert.Equal(t, 0, f.live(t, slot.ID), "rejected commit must not leave an appointment behind")
}

func TestCommit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.slot(t, "dr-smith", at(1, 7, 0), 1)
	inactive := f.slot(t, "dr-smith", at(4, 14, 0), 1)
	inactive.IsActive = false
	require.NoError(t, f.store.Slots().Update(ctx, inactive))

	tests := []struct {
		name string
		req  *model.CommitRequest
		code string
	}{
		{"slot already started", slotRequest(past.ID), apperrors.CodeValidation},
		{"inactive slot", slotRequest(inactive.ID), apperrors.CodeNotFound},
		{"unknown slot", slotRequest("1b4e28ba-2fa1-11d2-883f-0016d3cca427"), apperrors.CodeNotFound},
		{"range in the past", rangeRequest("dr-smith", at(1, 6, 0), at(1, 7, 0)), apperrors.CodeValidation},
		{"missing patient", &model.CommitRequest{SlotID: past.ID}, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.committer.Commit(ctx, tt.req, patient)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, f.publisher.events)
}

func TestCommit_PublishFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	_, err := f.committer.Commit(context.Background(), slotRequest(slot.ID), patient)
	require.NoError(t, err)
	assert.Equal(t, 1, f.live(t, slot.ID))
}

func TestCommit_ReleasesHeldLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	lock, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	require.True(t, lock.Granted)

	req := slotRequest(slot.ID)
	req.LockToken = lock.HolderToken
	_, err = f.committer.Commit(ctx, req, patient)
	require.NoError(t, err)

	_, err = f.store.Locks().Get(ctx, slot.ID)
	assert.True(t, errors.Is(err, bookingserrors.ErrLockNotFound))
}

func TestCommit_PractitionerBooksOnBehalfOfPatient(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	req := slotRequest(slot.ID)
	req.PatientID = "patient-7"
	appt, err := f.committer.Commit(context.Background(), req, model.Identity{UserID: "dr-smith", Role: model.RolePractitioner})
	require.NoError(t, err)
	assert.Equal(t, "patient-7", appt.PatientID)
}

func TestCancelByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	appt, err := f.committer.Commit(ctx, slotRequest(slot.ID), patient)
	require.NoError(t, err)

	first, err := f.committer.CancelByToken(ctx, &model.CancelRequest{CancellationToken: appt.CancellationToken})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, first.Status)
	require.NotNil(t, first.CancelledAt)
	assert.Empty(t, first.CancellationToken)

	second, err := f.committer.CancelByToken(ctx, &model.CancelRequest{CancellationToken: appt.CancellationToken})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, second.Status)
	assert.Equal(t, first.CancelledAt.UTC(), second.CancelledAt.UTC())

	assert.Equal(t, 0, f.live(t, slot.ID))
	_, err = f.committer.Commit(ctx, slotRequest(slot.ID), patient)
	assert.NoError(t, err, "cancelling frees the capacity")

	assert.Equal(t, []string{
		events.TypeAppointmentBooked,
		events.TypeAppointmentCancelled,
		events.TypeAppointmentBooked,
	}, f.publisher.events)
}

func TestCancelByToken_UnknownTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := sealer.New("ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA=")
	require.NoError(t, err)
	forged, err := other.Seal("1b4e28ba-2fa1-11d2-883f-0016d3cca427", "dr-smith")
	require.NoError(t, err)
	valid, err := f.committer.sealer.Seal("1b4e28ba-2fa1-11d2-883f-0016d3cca427", "dr-smith")
	require.NoError(t, err)

	for _, token := range []string{"garbage", forged, valid} {
		_, err := f.committer.CancelByToken(ctx, &model.CancelRequest{CancellationToken: token})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "token %q: %v", token, err)
	}

	_, err = f.committer.CancelByToken(ctx, &model.CancelRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestCancel_CompletedIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	appt, err := f.committer.Commit(ctx, slotRequest(slot.ID), patient)
	require.NoError(t, err)
	require.NoError(t, f.store.SetStatus(appt.ID, model.AppointmentStatusCompleted))

	_, err = f.committer.CancelByToken(ctx, &model.CancelRequest{CancellationToken: appt.CancellationToken})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = f.committer.CancelByID(ctx, appt.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestCancelByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.committer.Commit(ctx, rangeRequest("dr-smith", at(4, 9, 0), at(4, 9, 45)), patient)
	require.NoError(t, err)

	cancelled, err := f.committer.CancelByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	_, err = f.committer.CancelByID(ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.committer.CancelByID(ctx, "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestGetByID_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	appt, err := f.committer.Commit(ctx, slotRequest(slot.ID), patient)
	require.NoError(t, err)

	own, err := f.committer.GetByID(ctx, appt.ID, patient)
	require.NoError(t, err)
	assert.Empty(t, own.CancellationToken)

	_, err = f.committer.GetByID(ctx, appt.ID, model.Identity{UserID: "admin-1", Role: model.RoleAdmin})
	assert.NoError(t, err)

	_, err = f.committer.GetByID(ctx, appt.ID, model.Identity{UserID: "patient-2", Role: model.RolePatient})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestEndToEnd_WeekOfSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expander := slotsservice.NewExpander(f.cfg.Location, f.cfg.MaxGenerationDays, f.cfg.DefaultSlotCapacity)
	slots := slotsservice.NewSlotService(f.store.Slots(), expander, slotsvalidator.NewSlotValidator(f.cfg.Log), nil, f.cfg)
	availability := slotsservice.NewAvailabilityService(f.store.Slots(), nil, f.cfg)

	result, err := slots.GenerateFromWorkingHours(ctx, &model.WorkingHoursRequest{
		PractitionerID:  "dr-smith",
		StartDate:       "2026-05-04",
		EndDate:         "2026-05-10",
		WorkingDays:     []int{1, 2, 3, 4, 5},
		WorkingHours:    model.ClockWindow{Start: "09:00", End: "12:00"},
		SlotDurationMin: 30,
		Capacity:        1,
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 30)

	week, err := availability.Query(ctx, &model.AvailabilityQuery{PractitionerID: "dr-smith", From: "2026-05-04", To: "2026-05-10"})
	require.NoError(t, err)
	assert.Len(t, week, 30)

	monday, err := availability.Query(ctx, &model.AvailabilityQuery{PractitionerID: "dr-smith", Date: "2026-05-04"})
	require.NoError(t, err)
	require.Len(t, monday, 6)
	require.Equal(t, at(4, 9, 0), monday[0].StartTime)

	_, err = f.committer.Commit(ctx, slotRequest(monday[0].ID), patient)
	require.NoError(t, err)

	monday, err = availability.Query(ctx, &model.AvailabilityQuery{PractitionerID: "dr-smith", Date: "2026-05-04"})
	require.NoError(t, err)
	require.Len(t, monday, 6)
	assert.False(t, monday[0].IsAvailable)
	assert.Equal(t, 1, monday[0].BookedCount)
	for _, v := range monday[1:] {
		assert.True(t, v.IsAvailable, "slot at %s", v.StartTime)
	}
}

func TestCommit_NationalPhoneUsesClinicRegion(t *testing.T) {
	f := newFixture(t)
	f.committer.phoneRegion = locale.RegionForTimeZone("Europe/London", sanitizer.DefaultRegion)
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	req := slotRequest(slot.ID)
	req.Patient.Phone = "020 7183 8750"
	appt, err := f.committer.Commit(context.Background(), req, patient)
	require.NoError(t, err)
	assert.Equal(t, "+442071838750", appt.Patient.Phone)
}
