package charger

// Tracker is a perturb-and-observe hill-climb: it keeps moving the duty in
// the same direction while the power rises and turns round otherwise.
type Tracker struct {
	step      uint16
	down      bool
	lastPower uint32
}

func NewTracker(step uint16) *Tracker {
	return &Tracker{step: step}
}

// Reset forgets the last observation, the next step goes up.
func (t *Tracker) Reset() {
	t.down = false
	t.lastPower = 0
}

// Step moves d one increment in the direction chosen from power.
func (t *Tracker) Step(d *DutyCycle, power uint32) {
	if power <= t.lastPower {
		t.down = !t.down
	}
	t.lastPower = power

	if t.down {
		d.Lower(t.step)
		return
	}
	d.Raise(t.step)
}
