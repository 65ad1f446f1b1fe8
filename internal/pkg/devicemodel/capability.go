// Package devicemodel implements the voice-assistant capability/property
// model: typed device entities and their state<->wire translation, ported
// from original_source/capability.cpp and capability.h.
package devicemodel

import "math"

// Capability is a polymorphic actuator. Every variant reports its own wire
// type and instance name, renders its current Data into the voice-assistant
// state shape, and translates an incoming action payload into a hub-native
// partial-state patch.
type Capability interface {
	Type() string
	Instance() string
	Parameters() map[string]any
	// Data holds the last hub-side values driving this capability's state.
	Data() map[string]any
	Updated() bool
	SetUpdated(bool)
	State() map[string]any
	Action(request map[string]any) map[string]any
}

type base struct {
	typ        string
	instance   string
	parameters map[string]any
	data       map[string]any
	updated    bool
}

func newBase(typ, instance string) base {
	return base{
		typ:        typ,
		instance:   instance,
		parameters: map[string]any{},
		data:       map[string]any{},
	}
}

func (b *base) Type() string              { return b.typ }
func (b *base) Instance() string          { return b.instance }
func (b *base) Parameters() map[string]any { return b.parameters }
func (b *base) Data() map[string]any       { return b.data }
func (b *base) Updated() bool             { return b.updated }
func (b *base) SetUpdated(v bool)         { b.updated = v }

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toInt(v any) int {
	return int(toFloat(v))
}

// Switch models an on_off capability backed by a "status" field of "on"/"off".
type Switch struct{ base }

func NewSwitch() *Switch {
	s := &Switch{base: newBase("devices.capabilities.on_off", "on")}
	s.data["status"] = nil
	return s
}

func (s *Switch) State() map[string]any {
	return map[string]any{"instance": "on", "value": toString(s.data["status"]) == "on"}
}

func (s *Switch) Action(req map[string]any) map[string]any {
	if toBool(req["value"]) {
		return map[string]any{"status": "on"}
	}
	return map[string]any{"status": "off"}
}

// Brightness models a 1..100% range capability backed by a "level" field
// scaled 0..255.
type Brightness struct{ base }

func NewBrightness() *Brightness {
	b := &Brightness{base: newBase("devices.capabilities.range", "brightness")}
	b.parameters["instance"] = "brightness"
	b.parameters["range"] = map[string]any{"min": 1, "max": 100}
	b.parameters["unit"] = "unit.percent"
	b.data["level"] = nil
	return b
}

func (b *Brightness) State() map[string]any {
	return map[string]any{"instance": "brightness", "value": math.Round(toFloat(b.data["level"]) / 2.55)}
}

func (b *Brightness) Action(req map[string]any) map[string]any {
	value := toFloat(req["value"]) * 2.55
	if toBool(req["relative"]) {
		value += toFloat(b.data["level"])
	}
	value = math.Round(value)

	switch {
	case value < 2.55:
		value = 2.55
	case value > 255:
		value = 255
	}

	return map[string]any{"level": value}
}

// Curtain models an on_off capability backed by a "cover" field of
// "open"/"close".
type Curtain struct{ base }

func NewCurtain() *Curtain {
	c := &Curtain{base: newBase("devices.capabilities.on_off", "on")}
	c.data["cover"] = nil
	return c
}

func (c *Curtain) State() map[string]any {
	return map[string]any{"instance": "on", "value": toString(c.data["cover"]) == "open"}
}

func (c *Curtain) Action(req map[string]any) map[string]any {
	if toBool(req["value"]) {
		return map[string]any{"cover": "open"}
	}
	return map[string]any{"cover": "close"}
}

// Open models a 0..100% range capability backed by a "position" field.
type Open struct{ base }

func NewOpen() *Open {
	o := &Open{base: newBase("devices.capabilities.range", "open")}
	o.parameters["instance"] = "open"
	o.parameters["range"] = map[string]any{"min": 0, "max": 100}
	o.parameters["unit"] = "unit.percent"
	o.data["position"] = nil
	return o
}

func (o *Open) State() map[string]any {
	return map[string]any{"instance": "open", "value": toInt(o.data["position"])}
}

func (o *Open) Action(req map[string]any) map[string]any {
	value := toInt(req["value"])
	if toBool(req["relative"]) {
		value += toInt(o.data["position"])
	}

	switch {
	case value < 0:
		value = 0
	case value > 100:
		value = 100
	}

	return map[string]any{"position": value}
}

// ThermostatPower models an on_off capability backed by a "systemMode"
// field; turning it on restores the last non-off mode recorded by a linked
// ThermostatMode.
type ThermostatPower struct {
	base
	onValue any
}

func NewThermostatPower(onValue any) *ThermostatPower {
	p := &ThermostatPower{base: newBase("devices.capabilities.on_off", "on"), onValue: onValue}
	p.data["systemMode"] = nil
	return p
}

// SetOnValue records the mode ThermostatPower should restore on the next
// "on" action; called by a linked ThermostatMode whenever it observes a
// non-off mode.
func (p *ThermostatPower) SetOnValue(value any) { p.onValue = value }

func (p *ThermostatPower) State() map[string]any {
	return map[string]any{"instance": "on", "value": toString(p.data["systemMode"]) != "off"}
}

func (p *ThermostatPower) Action(req map[string]any) map[string]any {
	if toBool(req["value"]) {
		return map[string]any{"systemMode": p.onValue}
	}
	return map[string]any{"systemMode": "off"}
}

var thermostatModeCheck = map[string]bool{"auto": true, "cool": true, "heat": true, "dry": true, "fan": true}

// ThermostatMode models the selectable climate mode, mapping the hub's
// "fan" mode to the voice taxonomy's "fan_only" and keeping a linked
// ThermostatPower's restore value current.
type ThermostatMode struct {
	base
	power *ThermostatPower
	value any
}

// NewThermostatMode builds a mode capability from the hub's systemMode enum
// (filtered to the recognized subset) optionally linked to a
// ThermostatPower so that power-on restores the last observed mode.
func NewThermostatMode(list []any, power *ThermostatPower) *ThermostatMode {
	m := &ThermostatMode{base: newBase("devices.capabilities.mode", "thermostat"), power: power}
	if len(list) > 0 {
		m.value = list[0]
	}

	modes := make([]any, 0, len(list))
	for _, v := range list {
		s := toString(v)
		if !thermostatModeCheck[s] {
			continue
		}
		wire := s
		if s == "fan" {
			wire = "fan_only"
		}
		modes = append(modes, map[string]any{"value": wire})
	}

	m.parameters["instance"] = "thermostat"
	m.parameters["modes"] = modes
	m.data["systemMode"] = m.value
	return m
}

func (m *ThermostatMode) State() map[string]any {
	value := toString(m.data["systemMode"])
	if value != "off" {
		m.value = value
	}

	if m.power != nil {
		m.power.SetOnValue(m.value)
	}

	wire := m.value
	if toString(m.value) == "fan" {
		wire = "fan_only"
	}

	return map[string]any{"instance": "thermostat", "value": wire}
}

func (m *ThermostatMode) Action(req map[string]any) map[string]any {
	value := toString(req["value"])
	if value == "fan_only" {
		value = "fan"
	}
	return map[string]any{"systemMode": value}
}

// Temperature models a range capability for the target setpoint, in
// Celsius, bounded by hub-supplied min/max/step.
type Temperature struct{ base }

// NewTemperature builds the capability from a hub "targetTemperature"
// option map of {min, max, step}.
func NewTemperature(min, max, step float64) *Temperature {
	t := &Temperature{base: newBase("devices.capabilities.range", "temperature")}
	t.parameters["instance"] = "temperature"
	t.parameters["range"] = map[string]any{"min": min, "max": max, "precision": step}
	t.parameters["unit"] = "unit.temperature.celsius"
	t.data["targetTemperature"] = nil
	return t
}

func (t *Temperature) State() map[string]any {
	return map[string]any{"instance": "temperature", "value": toFloat(t.data["targetTemperature"])}
}

func (t *Temperature) Action(req map[string]any) map[string]any {
	value := toFloat(req["value"])
	if toBool(req["relative"]) {
		value += toFloat(t.data["targetTemperature"])
	}
	return map[string]any{"targetTemperature": value}
}

func modeCapability(typ, instance string, allowed map[string]bool, enum []any, dataKey string) base {
	b := newBase(typ, instance)

	modes := make([]any, 0, len(enum))
	for _, v := range enum {
		s := toString(v)
		if !allowed[s] {
			continue
		}
		modes = append(modes, map[string]any{"value": s})
	}

	b.parameters["instance"] = instance
	b.parameters["modes"] = modes
	b.data[dataKey] = nil
	return b
}

var fanModeAllowed = map[string]bool{"min": true, "low": true, "medium": true, "high": true, "max": true, "auto": true}

// FanMode models the fan-speed mode capability.
type FanMode struct{ base }

func NewFanMode(enum []any) *FanMode {
	return &FanMode{base: modeCapability("devices.capabilities.mode", "fan_speed", fanModeAllowed, enum, "fanMode")}
}

func (f *FanMode) State() map[string]any {
	return map[string]any{"instance": "fan_speed", "value": toString(f.data["fanMode"])}
}

func (f *FanMode) Action(req map[string]any) map[string]any {
	return map[string]any{"fanMode": toString(req["value"])}
}

var heatModeAllowed = map[string]bool{"min": true, "normal": true, "turbo": true, "max": true, "auto": true}

// HeatMode models the heating-intensity mode capability.
type HeatMode struct{ base }

func NewHeatMode(enum []any) *HeatMode {
	return &HeatMode{base: modeCapability("devices.capabilities.mode", "heat", heatModeAllowed, enum, "heatMode")}
}

func (h *HeatMode) State() map[string]any {
	return map[string]any{"instance": "heat", "value": toString(h.data["heatMode"])}
}

func (h *HeatMode) Action(req map[string]any) map[string]any {
	return map[string]any{"heatMode": toString(req["value"])}
}

var swingModeAllowed = map[string]bool{"stationary": true, "horizontal": true, "vertical": true}

// SwingMode models the louver-swing mode capability.
type SwingMode struct{ base }

func NewSwingMode(enum []any) *SwingMode {
	return &SwingMode{base: modeCapability("devices.capabilities.mode", "swing", swingModeAllowed, enum, "swingMode")}
}

func (s *SwingMode) State() map[string]any {
	return map[string]any{"instance": "swing", "value": toString(s.data["swingMode"])}
}

func (s *SwingMode) Action(req map[string]any) map[string]any {
	return map[string]any{"swingMode": toString(req["value"])}
}
