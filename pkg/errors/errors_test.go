package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := stderrors.New("mongo connection refused")

	tests := []struct {
		name    string
		err     *AppError
		code    string
		status  int
		message string
	}{
		{"not found", NotFound("Appointment"), CodeNotFound, http.StatusNotFound, "Appointment not found"},
		{"not found with id", NotFoundWithID("Slot", "s-1"), CodeNotFound, http.StatusNotFound, ""},
		{"validation", Validation("bad request body", nil), CodeValidation, http.StatusBadRequest, "bad request body"},
		{"invalid input", InvalidInput("bad id"), CodeInvalidInput, http.StatusBadRequest, "bad id"},
		{"unauthorized", Unauthorized("missing caller identity"), CodeUnauthorized, http.StatusUnauthorized, "missing caller identity"},
		{"forbidden", Forbidden("admin only"), CodeForbidden, http.StatusForbidden, "admin only"},
		{"conflict", Conflict("slot has live appointments"), CodeConflict, http.StatusConflict, "slot has live appointments"},
		{"slot full", SlotFull("s-1"), CodeSlotFull, http.StatusConflict, ""},
		{"time conflict", TimeConflict("dr-1"), CodeTimeConflict, http.StatusConflict, ""},
		{"lock conflict", LockConflict("s-1"), CodeLockConflict, http.StatusConflict, ""},
		{"internal", Internal("commit failed", cause), CodeInternal, http.StatusInternalServerError, "commit failed"},
		{"timeout", Timeout("store timed out"), CodeTimeout, http.StatusGatewayTimeout, "store timed out"},
		{"unavailable", Unavailable("Slot store"), CodeUnavailable, http.StatusServiceUnavailable, "Slot store is temporarily unavailable"},
		{"custom", New(CodeBadRequest, "unsupported media", http.StatusUnsupportedMediaType), CodeBadRequest, http.StatusUnsupportedMediaType, "unsupported media"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("status = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.message != "" && tt.err.Message != tt.message {
				t.Errorf("message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestConflictDetails(t *testing.T) {
	if got := SlotFull("s-1").Details["slot_id"]; got != "s-1" {
		t.Errorf("SlotFull slot_id = %v", got)
	}
	if got := TimeConflict("dr-1").Details["practitioner_id"]; got != "dr-1" {
		t.Errorf("TimeConflict practitioner_id = %v", got)
	}
	lock := LockConflict("s-1")
	if lock.Details["granted"] != false || lock.Details["slot_id"] != "s-1" {
		t.Errorf("LockConflict details = %v", lock.Details)
	}
	if got := NotFoundWithID("Slot", "s-1").Details; got["resource"] != "Slot" || got["id"] != "s-1" {
		t.Errorf("NotFoundWithID details = %v", got)
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("mongo connection refused")
	err := Wrap(cause, CodeInternal, "commit failed", http.StatusInternalServerError)

	want := "INTERNAL_ERROR: commit failed (caused by: mongo connection refused)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause must be reachable with errors.Is")
	}
	if got := Conflict("x").Error(); got != "CONFLICT: x" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestWithDetails(t *testing.T) {
	err := Validation("invalid slot", nil).WithDetails(map[string]any{
		"field": "start_time",
		"error": "must be before end_time",
	})
	if err.Details["field"] != "start_time" || err.Details["error"] != "must be before end_time" {
		t.Errorf("details = %v", err.Details)
	}
}

func TestHasCodeAndAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("transaction failed: %w", SlotFull("s-1"))

	if !IsAppError(wrapped) {
		t.Error("IsAppError should see through wrapping")
	}
	if !HasCode(wrapped, CodeSlotFull) {
		t.Error("HasCode should find the wrapped SLOT_FULL")
	}
	if HasCode(wrapped, CodeTimeConflict) {
		t.Error("HasCode must not match a different code")
	}
	if AsAppError(wrapped).Code != CodeSlotFull {
		t.Error("AsAppError should unwrap to SLOT_FULL")
	}

	plain := stderrors.New("boom")
	if IsAppError(plain) || HasCode(plain, CodeInternal) {
		t.Error("a plain error is not an AppError")
	}
	internal := AsAppError(plain)
	if internal.Code != CodeInternal || internal.Err != plain {
		t.Errorf("AsAppError(plain) = %+v", internal)
	}
}

func TestAppError_ToJSON(t *testing.T) {
	var body ErrorResponse
	if err := json.Unmarshal(LockConflict("s-1").ToJSON(), &body); err != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v", err)
	}
	if body.Code != CodeLockConflict {
		t.Errorf("code = %s", body.Code)
	}
	if body.Details["granted"] != false {
		t.Errorf("details = %v", body.Details)
	}
	if body.Message == "" {
		t.Error("message must be set")
	}
}
