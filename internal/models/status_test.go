package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTripStatusTransitions(t *testing.T) {
	tests := []struct {
		from TripStatus
		to   TripStatus
		want bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusScheduled, StatusDelayed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusDelayed, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusDelayed, StatusCompleted, true},
		{StatusDelayed, StatusCancelled, true},
		{StatusDelayed, StatusScheduled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCompleted, StatusCompleted, true},
		{StatusScheduled, "Boarding", false},
		{"Boarding", StatusScheduled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTripStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusDelayed.IsTerminal())
	assert.False(t, StatusScheduled.IsTerminal())

	assert.True(t, StatusInProgress.IsActive())
	assert.True(t, StatusDelayed.IsActive())
	assert.False(t, StatusScheduled.IsActive())
}

func TestEnumValidation(t *testing.T) {
	assert.True(t, ServiceType("LU").Valid())
	assert.False(t, ServiceType("XL").Valid())
	assert.True(t, Direction("inbound").Valid())
	assert.False(t, Direction("north").Valid())
	assert.True(t, OperatorType("SLTB").Valid())
	assert.False(t, OperatorType("sltb").Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("root").Valid())
}
