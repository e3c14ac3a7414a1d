package congestion_cubic

// State is the phase of the Cubic state machine.
type State int

const (
	// StateHystart grows the window by every acked byte.
	StateHystart State = iota
	// StateSteady follows the cubic curve.
	StateSteady
	// StateFastRecovery holds the window after a reduction until a packet
	// sent after the reduction is acked.
	StateFastRecovery
)

func (s State) String() string {
	switch s {
	case StateHystart:
		return "Hystart"
	case StateSteady:
		return "Steady"
	case StateFastRecovery:
		return "Recovery"
	default:
		return "Unknown"
	}
}

func (s State) pacingGain() float64 {
	switch s {
	case StateHystart:
		return HystartPacingGain
	case StateFastRecovery:
		return RecoveryPacingGain
	default:
		return SteadyPacingGain
	}
}
