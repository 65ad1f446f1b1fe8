// Package expose translates a hub-native expose/options description into
// the devicemodel's capabilities, properties and inferred device type.
// Ported rule-by-rule, in the same fixed order, from
// original_source/client.cpp's Client::parseExposes.
package expose

import (
	"strconv"
	"strings"

	"github.com/homed/cloud-bridge/internal/pkg/devicemodel"
)

// Endpoint is the subset of hub.Endpoint the translator needs: the raw
// exposes/options payload, and the capabilities/properties/type it builds
// into. Kept as a small interface so hub.Endpoint doesn't need to import
// this package.
type Endpoint interface {
	Exposes() []string
	Options() map[string]any
	Type() string
	// SetType assigns the endpoint's voice-assistant type. First-writer
	// wins: a second call with the type already set is a no-op.
	SetType(string)
	AddCapability(devicemodel.Capability)
	AddProperty(name string, prop devicemodel.Property)
}

func asStringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func containsAny(list []string, values ...string) bool {
	for _, v := range values {
		if contains(list, v) {
			return true
		}
	}
	return false
}

func removeAll(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func enumOption(options map[string]any, key string) []string {
	return asStringList(asMap(options[key])["enum"])
}

// ParseExposes evaluates the fixed, additive rule set against ep's exposes
// and options, setting its type (once) and appending capabilities/
// properties. An endpoint whose type remains empty after every rule has
// run is left with no capabilities or properties and should be dropped
// from discovery by the caller.
func ParseExposes(ep Endpoint) {
	exposes := ep.Exposes()
	options := ep.Options()

	// basic

	if contains(exposes, "switch") {
		if asString(options["switch"]) == "outlet" {
			ep.SetType("devices.types.socket")
		} else {
			ep.SetType("devices.types.switch")
		}
		ep.AddCapability(devicemodel.NewSwitch())
	}

	if contains(exposes, "lock") {
		if asString(options["lock"]) == "valve" {
			ep.SetType("devices.types.openable.valve")
		} else {
			ep.SetType("devices.types.openable.door_lock")
		}
		ep.AddCapability(devicemodel.NewSwitch())
	}

	if contains(exposes, "light") {
		list := asStringList(options["light"])

		ep.SetType("devices.types.light")
		ep.AddCapability(devicemodel.NewSwitch())

		if contains(list, "level") {
			ep.AddCapability(devicemodel.NewBrightness())
		}

		if contains(list, "color") || contains(list, "colorTemperature") {
			ep.AddCapability(devicemodel.NewColor(list, asMap(options["colorTemperature"])))
		}
	}

	if contains(exposes, "cover") {
		ep.SetType("devices.types.openable.curtain")
		ep.AddCapability(devicemodel.NewCurtain())
		ep.AddCapability(devicemodel.NewOpen())
	}

	if contains(exposes, "thermostat") {
		list := enumOption(options, "systemMode")
		var power *devicemodel.ThermostatPower

		ep.SetType("devices.types.thermostat")

		if contains(list, "off") {
			list = removeAll(list, "off")
			var onValue any
			if len(list) > 0 {
				onValue = list[0]
			}
			power = devicemodel.NewThermostatPower(onValue)
			ep.AddCapability(power)
		}

		if len(list) > 0 {
			anyList := make([]any, len(list))
			for i, v := range list {
				anyList[i] = v
			}
			ep.AddCapability(devicemodel.NewThermostatMode(anyList, power))
		}

		target := asMap(options["targetTemperature"])
		step := 1.0
		if v, ok := target["step"]; ok {
			step = asFloat(v)
		}
		ep.AddCapability(devicemodel.NewTemperature(asFloat(target["min"]), asFloat(target["max"]), step))
		ep.AddProperty("temperature", devicemodel.NewTemperatureProperty())
	}

	// event

	if contains(exposes, "action") {
		list := enumOption(options, "action")
		if containsAny(list, "singleClick", "doubleClick", "hold") {
			ep.SetType("devices.types.sensor.button")
			ep.AddProperty("action", devicemodel.NewButton(list))
		}
	}

	if contains(exposes, "contact") {
		ep.SetType("devices.types.sensor.open")
		ep.AddProperty("contact", devicemodel.NewBinary("open", "opened", "closed"))
	}

	if contains(exposes, "gas") {
		ep.SetType("devices.types.sensor.gas")
		ep.AddProperty("gas", devicemodel.NewBinary("gas", "detected", "not_detected"))
	}

	if contains(exposes, "occupancy") {
		ep.SetType("devices.types.sensor.motion")
		ep.AddProperty("occupancy", devicemodel.NewBinary("motion", "detected", "not_detected"))
	}

	if contains(exposes, "smoke") {
		ep.SetType("devices.types.sensor.smoke")
		ep.AddProperty("smoke", devicemodel.NewBinary("smoke", "detected", "not_detected"))
	}

	if contains(exposes, "waterLeak") {
		ep.SetType("devices.types.sensor.water_leak")
		ep.AddProperty("waterLeak", devicemodel.NewBinary("water_leak", "leak", "dry"))
	}

	if contains(exposes, "vibration") {
		ep.SetType("devices.types.sensor.vibration")
		ep.AddProperty("event", devicemodel.NewVibration())
	}

	// climate

	if contains(exposes, "temperature") && !asBool(asMap(options["temperature"])["diagnostic"]) {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("temperature", devicemodel.NewTemperatureProperty())
	}

	if contains(exposes, "pressure") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("pressure", devicemodel.NewPressureProperty())
	}

	if contains(exposes, "humidity") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("humidity", devicemodel.NewHumidityProperty())
	}

	if contains(exposes, "co2") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("co2", devicemodel.NewCO2Property())
	}

	if contains(exposes, "pm1") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("pm1", devicemodel.NewPM1Property())
	}

	if contains(exposes, "pm10") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("pm10", devicemodel.NewPM10Property())
	}

	if contains(exposes, "pm25") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("pm25", devicemodel.NewPM25Property())
	}

	if contains(exposes, "voc") {
		ep.SetType("devices.types.sensor.climate")
		ep.AddProperty("voc", devicemodel.NewVOCProperty())
	}

	// illumination

	if contains(exposes, "illuminance") {
		ep.SetType("devices.types.sensor.illumination")
		ep.AddProperty("illuminance", devicemodel.NewIlluminanceProperty())
	}

	// water meter

	if contains(exposes, "volume") {
		ep.SetType("devices.types.smart_meter")
		ep.AddProperty("volume", devicemodel.NewVolumeProperty())
	}

	// electricity

	if contains(exposes, "energy") {
		ep.SetType("devices.types.smart_meter.electricity")
		ep.AddProperty("energy", devicemodel.NewEnergyProperty())
	}

	if contains(exposes, "voltage") {
		ep.SetType("devices.types.smart_meter.electricity")
		ep.AddProperty("voltage", devicemodel.NewVoltageProperty())
	}

	if contains(exposes, "current") {
		ep.SetType("devices.types.smart_meter.electricity")
		ep.AddProperty("current", devicemodel.NewCurrentProperty())
	}

	if contains(exposes, "power") {
		ep.SetType("devices.types.smart_meter.electricity")
		ep.AddProperty("power", devicemodel.NewPowerProperty())
	}

	// other — gated on a type already having been assigned by one of the
	// rules above, matching the original's early return once every prior
	// rule has had a chance to run.
	if ep.Type() == "" {
		return
	}

	if contains(exposes, "fanMode") {
		ep.AddCapability(devicemodel.NewFanMode(toAnyList(enumOption(options, "fanMode"))))
	}

	if contains(exposes, "heatMode") {
		ep.AddCapability(devicemodel.NewHeatMode(toAnyList(enumOption(options, "heatMode"))))
	}

	if contains(exposes, "swingMode") {
		ep.AddCapability(devicemodel.NewSwingMode(toAnyList(enumOption(options, "swingMode"))))
	}

	if contains(exposes, "battery") {
		ep.AddProperty("battery", devicemodel.NewBatteryProperty())
	} else if contains(exposes, "batteryLow") {
		ep.AddProperty("batteryLow", devicemodel.NewBinary("battery_level", "low", "normal"))
	}
}

func toAnyList(list []string) []any {
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out
}

// SplitNumericExpose detects the "<expose>_<n>" numeric-suffix convention
// hubs use to address multiple endpoints by a suffixed scalar key rather
// than a path segment. It returns the bare expose name, the numeric
// endpoint id, and true if name matched the convention.
func SplitNumericExpose(name string) (expose string, id uint8, numeric bool) {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 || idx == len(name)-1 {
		return name, 0, false
	}

	n, err := strconv.ParseUint(name[idx+1:], 10, 8)
	if err != nil {
		return name, 0, false
	}

	return name[:idx], uint8(n), true
}
