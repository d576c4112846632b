package model

import "time"

type ReservationLock struct {
	SlotID      string    `json:"slot_id" bson:"_id"`
	HolderToken string    `json:"holder_token" bson:"holder_token"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// IsExpired compares against the caller's clock at the moment of use.
func (l *ReservationLock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

type LockRequest struct {
	SlotID      string `json:"slot_id" validate:"required,uuid"`
	TTLSeconds  int    `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
	HolderToken string `json:"holder_token,omitempty" validate:"omitempty,max=64"`
}

type UnlockRequest struct {
	SlotID      string `json:"slot_id" validate:"required,uuid"`
	HolderToken string `json:"token" validate:"required,max=64"`
}

// LockResult carries the new expiry on a grant and the current holder's
// expiry on a denial.
type LockResult struct {
	Granted     bool       `json:"granted"`
	SlotID      string     `json:"slot_id"`
	HolderToken string     `json:"holder_token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
