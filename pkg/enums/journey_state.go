package enums

// JourneyState is the progression of a user through a funnel.
// Completed and DroppedOff are terminal.
type JourneyState string

const (
	JourneyNotStarted JourneyState = "not_started"
	JourneyInStep     JourneyState = "in_step"
	JourneyCompleted  JourneyState = "completed"
	JourneyDroppedOff JourneyState = "dropped_off"
)

// IsTerminal reports whether no further transitions are possible.
func (s JourneyState) IsTerminal() bool {
	return s == JourneyCompleted || s == JourneyDroppedOff
}
