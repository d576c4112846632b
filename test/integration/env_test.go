package integration

import (
	"os"
	"testing"
	"time"

	"medibook/pkg/client"
	"medibook/pkg/model"

	"github.com/google/uuid"
)

const readyTimeout = 30 * time.Second

type testEnv struct {
	availability *client.AvailabilityClient
	bookings     *client.BookingClient
	admin        *client.AvailabilityClient
	// practitionerID is unique per run so reruns against a shared database
	// never collide.
	practitionerID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("set INTEGRATION=1 to run against live services")
	}

	availabilityURL := getEnv("TEST_AVAILABILITY_URL", "http://localhost:8080")
	bookingsURL := getEnv("TEST_BOOKINGS_URL", availabilityURL)

	availability := client.NewAvailabilityClient(availabilityURL)
	bookings := client.NewBookingClient(bookingsURL)
	for _, c := range []*client.HttpClient{availability.HTTP(), bookings.HTTP()} {
		if err := c.WaitForHealthy(readyTimeout); err != nil {
			t.Fatalf("service at %s not ready: %v", c.BaseURL, err)
		}
	}

	return &testEnv{
		availability:   availability.As("patient-"+uuid.NewString()[:8], model.RolePatient),
		bookings:       bookings,
		admin:          availability.As("admin", model.RoleAdmin),
		practitionerID: "dr-it-" + uuid.NewString()[:8],
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
