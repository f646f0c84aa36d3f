package engine

import "fmt"

type TripPhase int

const (
	TripUnassigned TripPhase = iota
	TripWaiting
	TripRiding
	TripFinished
	TripCancelled

	tripPhaseCount
)

func (p TripPhase) String() string {
	switch p {
	case TripUnassigned:
		return "UNASSIGNED"
	case TripWaiting:
		return "WAITING"
	case TripRiding:
		return "RIDING"
	case TripFinished:
		return "FINISHED"
	case TripCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// terminal reports whether the trip is done and eligible for garbage
// collection.
func (p TripPhase) terminal() bool {
	return p == TripFinished || p == TripCancelled
}

// Trip is one ride request. Distance is derived at creation and immutable.
// PhaseTime[p] counts the blocks the trip has spent in phase p.
type Trip struct {
	ID          int
	Origin      Point
	Destination Point
	Distance    int

	Phase     TripPhase
	PhaseTime [tripPhaseCount]int

	// VehicleID is the serving (or forward-reserved) vehicle. 0 means none.
	VehicleID int
}

// WaitBlocks is the time the rider spent from request to pickup.
func (t *Trip) WaitBlocks() int {
	return t.PhaseTime[TripUnassigned] + t.PhaseTime[TripWaiting]
}

// RideBlocks is the time the rider spent on board.
func (t *Trip) RideBlocks() int {
	return t.PhaseTime[TripRiding]
}
