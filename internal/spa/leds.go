package spa

// debounced is a boolean that only changes after two consecutive reads agree.
type debounced struct {
	value     bool
	tentative bool
}

// update feeds one raw read and reports whether the published value changed.
func (d *debounced) update(raw bool) bool {
	if raw != d.tentative {
		d.tentative = raw
		return false
	}
	if raw == d.value {
		return false
	}
	d.value = raw
	return true
}

func (e *Engine) readLEDs(w uint16) {
	l := DecodeLEDs(w)
	if e.power.update(l.Power) {
		e.emit(ChangePower)
	}
	if e.bubbles.update(l.Bubbles) {
		e.emit(ChangeBubbles)
	}
	if e.heating.update(l.HeaterRed) {
		e.emit(ChangeHeating)
	}
	if e.heatingEnabled.update(l.HeaterRed || l.HeaterGreen) {
		e.emit(ChangeHeatingEnabled)
	}
	if e.filter.update(l.Filter) {
		e.emit(ChangeFilter)
	}
}
