package spa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Intent is a parsed user request, produced by the MQTT, web and console
// front ends and handed to the main loop for Engine.Submit.
type Intent struct {
	Kind  CommandKind
	On    bool // power/heating/filter/bubbles on; units: true = Celsius
	Value int  // target temperature
}

func (in Intent) String() string {
	switch in.Kind {
	case CmdTemperature:
		return fmt.Sprintf("%s=%d", in.Kind, in.Value)
	case CmdUnits:
		if in.On {
			return "units=C"
		}
		return "units=F"
	}
	return fmt.Sprintf("%s=%v", in.Kind, in.On)
}

// ErrUnknownTarget is returned by ParseIntent for an unrecognised attribute.
var ErrUnknownTarget = errors.New("unknown target")

// ParseIntent turns an attribute name and a textual value into an Intent.
// Names follow the MQTT topic leaves (power, heating_enabled, filter,
// bubbles, target_temp, temp_units); values are case-insensitive.
func ParseIntent(target, value string) (Intent, error) {
	value = strings.TrimSpace(value)
	var in Intent
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "power":
		in.Kind = CmdPower
	case "heating_enabled", "heating", "heater":
		in.Kind = CmdHeating
	case "filter":
		in.Kind = CmdFilter
	case "bubbles", "bubble":
		in.Kind = CmdBubbles
	case "temp_units", "units":
		in.Kind = CmdUnits
		switch strings.ToUpper(value) {
		case "C", "CELSIUS":
			in.On = true
		case "F", "FAHRENHEIT":
			in.On = false
		default:
			return Intent{}, fmt.Errorf("units: invalid value %q", value)
		}
		return in, nil
	case "target_temp", "target", "temp":
		v, err := strconv.Atoi(value)
		if err != nil {
			return Intent{}, fmt.Errorf("target temperature: %w", err)
		}
		return Intent{Kind: CmdTemperature, Value: v}, nil
	default:
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	on, err := parseSwitch(value)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", in.Kind, err)
	}
	in.On = on
	return in, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q", s)
}
