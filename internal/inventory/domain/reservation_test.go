package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ReservationState
		want     bool
	}{
		{ReservationPending, ReservationConfirmed, true},
		{ReservationPending, ReservationCancelled, true},
		{ReservationPending, ReservationExpired, true},
		{ReservationConfirmed, ReservationCancelled, false},
		{ReservationConfirmed, ReservationExpired, false},
		{ReservationCancelled, ReservationConfirmed, false},
		{ReservationExpired, ReservationConfirmed, false},
		{ReservationExpired, ReservationCancelled, false},
		{ReservationPending, ReservationPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewReservation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := NewReservation("order-1", "prod-1", "wh-1", 3, now, DefaultReservationTTL)

	if res.ID == "" {
		t.Error("reservation id not assigned")
	}
	if res.State != ReservationPending {
		t.Errorf("state = %s, want PENDING", res.State)
	}
	if want := now.Add(30 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", res.ExpiresAt, want)
	}
}

func TestReservation_ExpiredBy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := NewReservation("order-1", "prod-1", "wh-1", 3, now, 30*time.Minute)

	if res.ExpiredBy(now.Add(29 * time.Minute)) {
		t.Error("expired before TTL elapsed")
	}
	if !res.ExpiredBy(now.Add(31 * time.Minute)) {
		t.Error("not expired after TTL elapsed")
	}

	res.State = ReservationConfirmed
	if res.ExpiredBy(now.Add(31 * time.Minute)) {
		t.Error("confirmed reservation reported as expired")
	}
}
