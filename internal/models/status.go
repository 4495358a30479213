package models

// TripStatus is the lifecycle state of a trip
type TripStatus string

const (
	StatusScheduled  TripStatus = "Scheduled"
	StatusInProgress TripStatus = "In Progress"
	StatusCompleted  TripStatus = "Completed"
	StatusDelayed    TripStatus = "Delayed"
	StatusCancelled  TripStatus = "Cancelled"
)

// AllTripStatuses lists every status in lifecycle order
var AllTripStatuses = []TripStatus{
	StatusScheduled,
	StatusInProgress,
	StatusCompleted,
	StatusDelayed,
	StatusCancelled,
}

// transitions maps each non-terminal status to the statuses it may move to
var transitions = map[TripStatus][]TripStatus{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusDelayed, StatusCancelled},
	StatusDelayed:    {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status
func (s TripStatus) Valid() bool {
	for _, known := range AllTripStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s
func (s TripStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether a trip in status s may receive location fixes
func (s TripStatus) IsActive() bool {
	return s == StatusInProgress || s == StatusDelayed
}

// CanTransitionTo reports whether a trip may move from s to next.
// Re-asserting the current status is accepted as a no-op.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
