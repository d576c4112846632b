package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medibook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpClient_AsSetsIdentityHeaders(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"granted":true,"slot_id":"s-1","holder_token":"h"}}`))
	}))
	defer srv.Close()

	base := NewBookingClient(srv.URL)
	alice := base.As("alice", model.RolePatient)

	resp, err := alice.Lock(context.Background(), &model.LockRequest{SlotID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", seen.Get(userIDHeader))
	assert.Equal(t, model.RolePatient, seen.Get(userRoleHeader))
	assert.Equal(t, "application/json", seen.Get("Content-Type"))

	result, err := alice.DecodeLock(resp)
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, "h", result.HolderToken)

	_, err = base.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Empty(t, seen.Get(userIDHeader), "As must not mutate the original client")
}

func TestAvailabilityClient_QueryEncodesParameters(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}, "count": 0})
	}))
	defer srv.Close()

	c := NewAvailabilityClient(srv.URL).As("alice", model.RolePatient)
	resp, err := c.Query(context.Background(), "dr-smith", &model.AvailabilityQuery{From: "2026-05-04", To: "2026-05-08", AvailableOnly: true})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/availability/slots/dr-smith", gotPath)
	assert.Equal(t, "available_only=true&from=2026-05-04&to=2026-05-08", gotQuery)

	slots, err := c.DecodeSlots(resp)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"SLOT_FULL","error":"slot is full"}`))
	}))
	defer srv.Close()

	resp, err := NewHttpClient(srv.URL).POSTRaw(context.Background(), "/", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body, err := DecodeError(resp)
	require.NoError(t, err)
	assert.Equal(t, "SLOT_FULL", body.Code)
}
