package spa

// ChangeType identifies which published attribute changed.
type ChangeType int

const (
	ChangeNone ChangeType = iota
	ChangePower
	ChangeHeatingEnabled
	ChangeHeating
	ChangeFilter
	ChangeBubbles
	ChangeTargetTemp
	ChangeTemp
	ChangeAirTemp
	ChangeTempUnits
	ChangeErrorCode
)

var changeNames = [...]string{
	ChangeNone:           "none",
	ChangePower:          "power",
	ChangeHeatingEnabled: "heating_enabled",
	ChangeHeating:        "heating",
	ChangeFilter:         "filter",
	ChangeBubbles:        "bubbles",
	ChangeTargetTemp:     "target_temp",
	ChangeTemp:           "temp",
	ChangeAirTemp:        "air_temp",
	ChangeTempUnits:      "temp_units",
	ChangeErrorCode:      "error",
}

// String returns the snake_case name, which doubles as the MQTT topic leaf.
func (c ChangeType) String() string {
	if c < 0 || int(c) >= len(changeNames) {
		return "unknown"
	}
	return changeNames[c]
}

// ChangeTypes lists every reportable change, in publishing order.
func ChangeTypes() []ChangeType {
	return []ChangeType{
		ChangePower, ChangeHeatingEnabled, ChangeHeating, ChangeFilter, ChangeBubbles,
		ChangeTargetTemp, ChangeTemp, ChangeAirTemp, ChangeTempUnits, ChangeErrorCode,
	}
}

// ChangeEvent is broadcast synchronously when a published value changes.
type ChangeEvent struct {
	Type ChangeType
}

// Listener receives change events. OnChange runs on the main loop and must
// return quickly.
type Listener interface {
	OnChange(ev ChangeEvent)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(ev ChangeEvent)

// OnChange calls f(ev).
func (f ListenerFunc) OnChange(ev ChangeEvent) {
	f(ev)
}

// ListenerID identifies a registration for RemoveListener.
type ListenerID uint64

type registration struct {
	id ListenerID
	l  Listener
}

// registry keeps listeners in registration order.
type registry struct {
	next    ListenerID
	entries []registration
}

func (r *registry) add(l Listener) ListenerID {
	r.next++
	r.entries = append(r.entries, registration{id: r.next, l: l})
	return r.next
}

func (r *registry) remove(id ListenerID) bool {
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry) emit(ev ChangeEvent) {
	for _, e := range r.entries {
		e.l.OnChange(ev)
	}
}
