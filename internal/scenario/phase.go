// Package scenario drives the scripted session arc. A phase state
// machine walks Calm through Stabilization as the session progresses,
// publishing synthetic news conditioned on the current phase.
package scenario

// Phase is a segment of the session timeline. Phases only ever move
// forward within a session.
type Phase int

const (
	PhaseCalm Phase = iota
	PhaseEmergingTrend
	PhaseBubble
	PhaseCrash
	PhaseStabilization
)

// Progress-ratio boundaries between phases. Each phase owns the
// half-open interval up to the next boundary; Stabilization runs to the
// end of the session.
const (
	boundEmerging      = 0.166
	boundBubble        = 0.333
	boundCrash         = 0.583
	boundStabilization = 0.75
)

func (p Phase) String() string {
	switch p {
	case PhaseCalm:
		return "Calm"
	case PhaseEmergingTrend:
		return "EmergingTrend"
	case PhaseBubble:
		return "Bubble"
	case PhaseCrash:
		return "Crash"
	case PhaseStabilization:
		return "Stabilization"
	}
	return "Unknown"
}

// PhaseAt maps a session progress ratio in [0, 1] to its phase.
func PhaseAt(progress float64) Phase {
	switch {
	case progress < boundEmerging:
		return PhaseCalm
	case progress < boundBubble:
		return PhaseEmergingTrend
	case progress < boundCrash:
		return PhaseBubble
	case progress < boundStabilization:
		return PhaseCrash
	}
	return PhaseStabilization
}
