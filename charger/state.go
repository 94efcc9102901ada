package charger

import "fmt"

// State is the operating state of the charger.
type State int

const (
	Off   State = iota // converter disabled, MOSFETs off
	On                 // converter enabled, tracking not converged
	Bulk               // charging at the tracked peak power
	Float              // holding the battery at the float voltage
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case On:
		return "on"
	case Bulk:
		return "bulk"
	case Float:
		return "float"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Off, On, Bulk, Float} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown charger state %q", text)
}

// Tracking reports whether the hill-climb runs in this state.
func (s State) Tracking() bool {
	return s == On || s == Bulk
}

// Thresholds drive the state transitions. They have no defaults.
type Thresholds struct {
	MinSolarMilliwatts   uint32
	LowSolarMilliwatts   uint32
	FloatMillivolts      uint16
	MinBatteryMillivolts uint16
	// Ticks to wait in Off before trying to restart
	OffTicks int
}
