package guard

// State is the host snapshot the guard checks before every change.
type State struct {
	InterruptionFilterAllowsAll bool `json:"interruption_filter_allows_all"`
	DisplayInteractive          bool `json:"display_interactive"`
	CallActive                  bool `json:"call_active"`
}

// Provider supplies the current State. Implemented by the host.
type Provider interface {
	QueryGuardState() State
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() State

func (f ProviderFunc) QueryGuardState() State { return f() }

// Veto names the condition that blocked a change.
type Veto int

const (
	None Veto = iota
	VetoInterruptionFilter
	VetoDisplayInteractive
	VetoCallActive
)

func (v Veto) String() string {
	switch v {
	case None:
		return "none"
	case VetoInterruptionFilter:
		return "interruption_filter"
	case VetoDisplayInteractive:
		return "display_interactive"
	case VetoCallActive:
		return "call_active"
	default:
		return "unknown"
	}
}

// Check runs the vetoes in order and stops at the first that applies:
// Do-Not-Disturb, then an interactive display, then an active call.
func Check(s State) Veto {
	if !s.InterruptionFilterAllowsAll {
		return VetoInterruptionFilter
	}
	if s.DisplayInteractive {
		return VetoDisplayInteractive
	}
	if s.CallActive {
		return VetoCallActive
	}
	return None
}
