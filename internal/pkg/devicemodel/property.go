package devicemodel

import "fmt"

const (
	propertyTypeFloat = "devices.properties.float"
	propertyTypeEvent = "devices.properties.event"
)

// Property is a polymorphic sensor. Float properties report value/divider
// (or the raw value when divider is zero); event properties report the
// wire string mapped from the last observed hub value and report nothing
// when that value has no declared mapping.
type Property interface {
	Type() string
	Instance() string
	Parameters() map[string]any
	Value() any
	SetValue(any)
	Updated() bool
	SetUpdated(bool)
	// State returns the voice-assistant state object and true, or
	// (nil, false) if the property has nothing valid to report.
	State() (map[string]any, bool)
}

type propertyBase struct {
	typ        string
	instance   string
	divider    float64
	parameters map[string]any
	events     map[string]string
	value      any
	updated    bool
}

func newProperty(typ, instance, unit string, divider float64) propertyBase {
	p := propertyBase{
		typ:        typ,
		instance:   instance,
		divider:    divider,
		parameters: map[string]any{"instance": instance},
		events:     map[string]string{},
	}
	if unit != "" {
		p.parameters["unit"] = unit
	}
	return p
}

func (p *propertyBase) Type() string              { return p.typ }
func (p *propertyBase) Instance() string          { return p.instance }
func (p *propertyBase) Parameters() map[string]any { return p.parameters }
func (p *propertyBase) Value() any                { return p.value }
func (p *propertyBase) SetValue(v any)            { p.value = v }
func (p *propertyBase) Updated() bool             { return p.updated }
func (p *propertyBase) SetUpdated(v bool)         { p.updated = v }

// addEvents populates the "events" parameter from the events map, in the
// shape discovery expects: a list of {"value": wireEvent} objects.
func (p *propertyBase) addEvents() {
	events := make([]any, 0, len(p.events))
	for _, wire := range p.events {
		events = append(events, map[string]any{"value": wire})
	}
	p.parameters["events"] = events
}

func (p *propertyBase) State() (map[string]any, bool) {
	if p.typ == propertyTypeEvent {
		wire, ok := p.events[fmt.Sprint(p.value)]
		if !ok {
			return nil, false
		}
		return map[string]any{"instance": p.instance, "value": wire}, true
	}

	if p.value == nil {
		return nil, false
	}

	value := toFloat(p.value)
	if p.divider > 0 {
		value /= p.divider
	}
	return map[string]any{"instance": p.instance, "value": value}, true
}

// genericProperty is the concrete type behind every PropertyObject-derived
// variant that adds no behavior of its own beyond its constructor.
type genericProperty struct{ propertyBase }

func (g *genericProperty) State() (map[string]any, bool) { return g.propertyBase.State() }

func newGenericProperty(typ, instance, unit string, divider float64) *genericProperty {
	p := &genericProperty{propertyBase: newProperty(typ, instance, unit, divider)}
	return p
}

// NewButton models a single/double-click and long-press event property,
// exposing only the click kinds the hub's action enum declares.
func NewButton(actions []string) *genericProperty {
	p := newGenericProperty(propertyTypeEvent, "button", "", 0)

	has := func(name string) bool {
		for _, a := range actions {
			if a == name {
				return true
			}
		}
		return false
	}

	if has("singleClick") {
		p.events["singleClick"] = "click"
	}
	if has("doubleClick") {
		p.events["doubleClick"] = "double_click"
	}
	if has("hold") {
		p.events["hold"] = "long_press"
	}

	p.addEvents()
	return p
}

// NewBinary models a boolean event property reporting "on"/"off" under
// whatever caller-supplied on/off wire strings fit the instance (e.g.
// contact/gas/occupancy/smoke/waterLeak, or batteryLow's "low"/"normal").
func NewBinary(instance, on, off string) *genericProperty {
	p := newGenericProperty(propertyTypeEvent, instance, "", 0)
	p.events["true"] = on
	p.events["false"] = off
	p.addEvents()
	return p
}

// NewVibration models the vibration sensor's three event kinds.
func NewVibration() *genericProperty {
	p := newGenericProperty(propertyTypeEvent, "vibration", "", 0)
	p.events["vibration"] = "vibration"
	p.events["tilt"] = "tilt"
	p.events["drop"] = "fall"
	p.addEvents()
	return p
}

func NewTemperatureProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "temperature", "unit.temperature.celsius", 0)
}

func NewPressureProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "pressure", "unit.pressure.mmhg", 0.1333)
}

func NewHumidityProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "humidity", "unit.percent", 0)
}

func NewCO2Property() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "co2_level", "unit.ppm", 0)
}

func NewPM1Property() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "pm1_density", "unit.density.mcg_m3", 0)
}

func NewPM10Property() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "pm10_density", "unit.density.mcg_m3", 0)
}

func NewPM25Property() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "pm2.5_density", "unit.density.mcg_m3", 0)
}

func NewVOCProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "tvoc", "unit.density.mcg_m3", 0)
}

func NewIlluminanceProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "illumination", "unit.illumination.lux", 0)
}

func NewVolumeProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "water_meter", "unit.cubic_meter", 1000)
}

func NewEnergyProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "electricity_meter", "unit.kilowatt_hour", 0)
}

func NewVoltageProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "voltage", "unit.volt", 0)
}

func NewCurrentProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "amperage", "unit.ampere", 0)
}

func NewPowerProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "power", "unit.watt", 0)
}

func NewBatteryProperty() *genericProperty {
	return newGenericProperty(propertyTypeFloat, "battery_level", "unit.percent", 0)
}
