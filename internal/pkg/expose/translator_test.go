package expose

import (
	"testing"

	"github.com/matryer/is"

	"github.com/homed/cloud-bridge/internal/pkg/devicemodel"
)

// fakeEndpoint is a minimal Endpoint backing, standing in for hub.Endpoint.
type fakeEndpoint struct {
	exposes      []string
	options      map[string]any
	typ          string
	capabilities []devicemodel.Capability
	properties   map[string]devicemodel.Property
}

func newFakeEndpoint(exposes []string, options map[string]any) *fakeEndpoint {
	return &fakeEndpoint{exposes: exposes, options: options, properties: map[string]devicemodel.Property{}}
}

func (e *fakeEndpoint) Exposes() []string             { return e.exposes }
func (e *fakeEndpoint) Options() map[string]any       { return e.options }
func (e *fakeEndpoint) Type() string                  { return e.typ }
func (e *fakeEndpoint) SetType(v string) {
	if e.typ == "" {
		e.typ = v
	}
}
func (e *fakeEndpoint) AddCapability(c devicemodel.Capability) { e.capabilities = append(e.capabilities, c) }
func (e *fakeEndpoint) AddProperty(name string, p devicemodel.Property) { e.properties[name] = p }

func TestParseExposesLightWithLevelAndColor(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"light"}, map[string]any{
		"light": []any{"level", "color"},
	})

	ParseExposes(ep)

	is.Equal(ep.Type(), "devices.types.light")
	is.Equal(len(ep.capabilities), 3) // Switch, Brightness, Color
	is.Equal(ep.capabilities[0].Type(), "devices.capabilities.on_off")
	is.Equal(ep.capabilities[1].Instance(), "brightness")
	is.Equal(ep.capabilities[2].Type(), "devices.capabilities.color_setting")
}

func TestParseExposesSwitchOutletType(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"switch"}, map[string]any{"switch": "outlet"})
	ParseExposes(ep)

	is.Equal(ep.Type(), "devices.types.socket")
	is.Equal(len(ep.capabilities), 1)
}

func TestParseExposesThermostatSplitsPowerAndMode(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"thermostat"}, map[string]any{
		"systemMode":        map[string]any{"enum": []any{"off", "heat", "cool"}},
		"targetTemperature": map[string]any{"min": 10.0, "max": 30.0, "step": 0.5},
	})

	ParseExposes(ep)

	is.Equal(ep.Type(), "devices.types.thermostat")
	// ThermostatPower, ThermostatMode, Temperature
	is.Equal(len(ep.capabilities), 3)

	power, ok := ep.capabilities[0].(*devicemodel.ThermostatPower)
	is.True(ok)
	is.Equal(power.Data()["systemMode"], nil)

	_, hasTemp := ep.properties["temperature"]
	is.True(hasTemp)
}

func TestParseExposesActionRequiresClickEnum(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"action"}, map[string]any{
		"action": map[string]any{"enum": []any{"rotate"}},
	})
	ParseExposes(ep)
	is.Equal(ep.Type(), "")

	ep2 := newFakeEndpoint([]string{"action"}, map[string]any{
		"action": map[string]any{"enum": []any{"singleClick", "hold"}},
	})
	ParseExposes(ep2)
	is.Equal(ep2.Type(), "devices.types.sensor.button")
}

func TestParseExposesClimateDiagnosticTemperatureIgnored(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"temperature"}, map[string]any{
		"temperature": map[string]any{"diagnostic": true},
	})
	ParseExposes(ep)

	is.Equal(ep.Type(), "")
	is.Equal(len(ep.properties), 0)
}

func TestParseExposesBatteryTakesPrecedenceOverBatteryLow(t *testing.T) {
	is := is.New(t)

	ep := newFakeEndpoint([]string{"switch", "battery", "batteryLow"}, map[string]any{})
	ParseExposes(ep)

	_, hasBattery := ep.properties["battery"]
	_, hasBatteryLow := ep.properties["batteryLow"]
	is.True(hasBattery)
	is.True(!hasBatteryLow)
}

func TestParseExposesUntypedEndpointHasNoModeCapabilities(t *testing.T) {
	is := is.New(t)

	// fanMode with no other expose setting a type: the endpoint stays
	// untyped and the "other" rule block (fanMode/heatMode/swingMode/
	// battery) never runs.
	ep := newFakeEndpoint([]string{"fanMode"}, map[string]any{
		"fanMode": map[string]any{"enum": []any{"low", "high"}},
	})
	ParseExposes(ep)

	is.Equal(ep.Type(), "")
	is.Equal(len(ep.capabilities), 0)
}

func TestSplitNumericExpose(t *testing.T) {
	is := is.New(t)

	name, id, numeric := SplitNumericExpose("switch_2")
	is.Equal(name, "switch")
	is.Equal(id, uint8(2))
	is.True(numeric)

	name, _, numeric = SplitNumericExpose("switch")
	is.Equal(name, "switch")
	is.True(!numeric)

	_, _, numeric = SplitNumericExpose("switch_abc")
	is.True(!numeric)
}
