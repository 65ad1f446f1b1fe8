package devicemodel

import (
	"testing"

	"github.com/matryer/is"
)

func TestSwitchStateAndAction(t *testing.T) {
	is := is.New(t)

	s := NewSwitch()
	s.Data()["status"] = "on"
	is.Equal(s.State(), map[string]any{"instance": "on", "value": true})

	is.Equal(s.Action(map[string]any{"value": false}), map[string]any{"status": "off"})
}

func TestBrightnessStateScalesFrom255(t *testing.T) {
	is := is.New(t)

	b := NewBrightness()
	b.Data()["level"] = 128

	state := b.State()
	is.Equal(state["instance"], "brightness")
	is.Equal(state["value"], float64(50))
}

func TestBrightnessActionClampsToRange(t *testing.T) {
	is := is.New(t)

	b := NewBrightness()
	b.Data()["level"] = 0.0

	low := b.Action(map[string]any{"value": 0.0})
	is.Equal(low["level"], 2.55)

	high := b.Action(map[string]any{"value": 100.0})
	is.Equal(high["level"], 255.0)
}

func TestBrightnessActionRelative(t *testing.T) {
	is := is.New(t)

	b := NewBrightness()
	b.Data()["level"] = 100.0

	got := b.Action(map[string]any{"value": 10.0, "relative": true})
	is.Equal(got["level"], float64(126)) // 100 + 10*2.55 = 125.5, rounds away from zero
}

func TestThermostatLifecycle(t *testing.T) {
	is := is.New(t)

	power := NewThermostatPower("heat")
	mode := NewThermostatMode([]any{"heat", "cool"}, power)

	power.Data()["systemMode"] = "cool"
	mode.Data()["systemMode"] = "cool"

	state := mode.State()
	is.Equal(state["value"], "cool")
	is.Equal(power.onValue, "cool")

	onAction := power.Action(map[string]any{"value": true})
	is.Equal(onAction["systemMode"], "cool")

	offAction := power.Action(map[string]any{"value": false})
	is.Equal(offAction["systemMode"], "off")
}

func TestThermostatModeMapsFanToFanOnly(t *testing.T) {
	is := is.New(t)

	mode := NewThermostatMode([]any{"fan", "cool"}, nil)
	modes := mode.Parameters()["modes"].([]any)
	is.Equal(len(modes), 2)
	is.Equal(modes[0].(map[string]any)["value"], "fan_only")

	action := mode.Action(map[string]any{"value": "fan_only"})
	is.Equal(action["systemMode"], "fan")
}

func TestOpenActionClampsAndIsRelative(t *testing.T) {
	is := is.New(t)

	o := NewOpen()
	o.Data()["position"] = 90

	got := o.Action(map[string]any{"value": 20, "relative": true})
	is.Equal(got["position"], 100)
}
