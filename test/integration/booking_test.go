package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"medibook/pkg/client"
	"medibook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestGenerateQueryAndBook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := futureDate(7)

	req := &model.WorkingHoursRequest{
		PractitionerID:  env.practitionerID,
		StartDate:       day,
		EndDate:         day,
		WorkingDays:     []int{0, 1, 2, 3, 4, 5, 6},
		WorkingHours:    model.ClockWindow{Start: "09:00", End: "12:00"},
		SlotDurationMin: 30,
	}
	resp, err := env.admin.Generate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())
	first, err := env.admin.DecodeGeneration(resp)
	require.NoError(t, err)
	require.Len(t, first.Created, 6)

	resp, err = env.admin.Generate(ctx, req)
	require.NoError(t, err)
	again, err := env.admin.DecodeGeneration(resp)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 6, again.Skipped)

	resp, err = env.availability.Query(ctx, env.practitionerID, &model.AvailabilityQuery{Date: day, AvailableOnly: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	slots, err := env.availability.DecodeSlots(resp)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	alice := env.bookings.As("alice-"+env.practitionerID, model.RolePatient)
	resp, err = alice.Commit(ctx, &model.CommitRequest{
		SlotID:  slots[0].ID,
		Patient: model.PatientInfo{Name: "Alice Liddell"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())
	appt, err := alice.DecodeAppointment(resp)
	require.NoError(t, err)
	require.NotEmpty(t, appt.CancellationToken)

	resp, err = env.availability.Query(ctx, env.practitionerID, &model.AvailabilityQuery{Date: day, AvailableOnly: true})
	require.NoError(t, err)
	slots, err = env.availability.DecodeSlots(resp)
	require.NoError(t, err)
	assert.Len(t, slots, 5)

	resp, err = alice.Cancel(ctx, appt.CancellationToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
}

func TestConcurrentCommitsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().UTC().AddDate(0, 0, 8).Truncate(time.Hour)

	resp, err := env.admin.Create(ctx, &model.SlotCreateRequest{
		PractitionerID: env.practitionerID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       3,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())
	slot, err := env.admin.DecodeSlot(resp)
	require.NoError(t, err)

	const callers = 10
	codes := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := env.bookings.As(fmt.Sprintf("patient-%d-%s", i, env.practitionerID), model.RolePatient)
			resp, err := c.Commit(ctx, &model.CommitRequest{
				SlotID:  slot.ID,
				Patient: model.PatientInfo{Name: fmt.Sprintf("Patient %d", i)},
			})
			if err != nil {
				codes <- 0
				return
			}
			codes <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, 3, counts[http.StatusCreated])
	assert.Equal(t, callers-3, counts[http.StatusConflict])
}

func TestLockIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().UTC().AddDate(0, 0, 9).Truncate(time.Hour)

	resp, err := env.admin.Create(ctx, &model.SlotCreateRequest{
		PractitionerID: env.practitionerID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	slot, err := env.admin.DecodeSlot(resp)
	require.NoError(t, err)

	alice := env.bookings.As("alice", model.RolePatient)
	bob := env.bookings.As("bob", model.RolePatient)

	resp, err = alice.Lock(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 30})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	held, err := alice.DecodeLock(resp)
	require.NoError(t, err)

	resp, err = bob.Lock(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body, err := client.DecodeError(resp)
	require.NoError(t, err)
	assert.Equal(t, "LOCK_CONFLICT", body.Code)

	resp, err = alice.Unlock(ctx, &model.UnlockRequest{SlotID: slot.ID, HolderToken: held.HolderToken})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = bob.Lock(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
