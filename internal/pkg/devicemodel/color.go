package devicemodel

import "math"

// Color models the color_setting capability, with two alternate reporting
// instances: "rgb" (palette-snapped) and "temperature_k". Which instance is
// authoritative is tracked by colorMode, mirroring the hub's own
// "colorMode" option.
type Color struct {
	base
	colorMode bool
}

// NewColor builds a Color capability from a light's expose options. list is
// the light expose's "light" option array (e.g. ["color","colorTemperature",
// "colorMode"]); colorTemperature, when present, carries hub-supplied
// {min,max} mireds bounds used to derive the reported Kelvin range.
func NewColor(list []string, colorTemperature map[string]any) *Color {
	c := &Color{base: newBase("devices.capabilities.color_setting", "color")}

	has := func(name string) bool {
		for _, v := range list {
			if v == name {
				return true
			}
		}
		return false
	}

	if has("color") {
		c.parameters["color_model"] = "rgb"
		c.data["color"] = nil
	}

	if has("colorTemperature") {
		min := 1500.0
		max := 9000.0

		if v, ok := colorTemperature["max"]; ok {
			min = math.Round(1e6 / toFloat(v))
		}
		if v, ok := colorTemperature["min"]; ok {
			max = math.Round(1e6 / toFloat(v))
		}

		lo, hi := colorTemperatureRange(min, max)
		c.parameters["temperature_k"] = map[string]any{"min": lo, "max": hi}
		c.data["colorTemperature"] = nil
	}

	if has("colorMode") {
		c.data["colorMode"] = nil
	}

	return c
}

func (c *Color) State() map[string]any {
	if v, ok := c.data["colorMode"]; ok && v != nil {
		c.colorMode = toBool(v)
	}

	if c.colorMode {
		channels, _ := c.data["color"].([]any)
		r, g, b := 0, 0, 0
		if len(channels) > 0 {
			r = toInt(channels[0])
		}
		if len(channels) > 1 {
			g = toInt(channels[1])
		}
		if len(channels) > 2 {
			b = toInt(channels[2])
		}

		value := r<<16 | g<<8 | b
		return map[string]any{"instance": "rgb", "value": snapToPalette(value)}
	}

	value := toFloat(c.data["colorTemperature"])
	if value == 0 {
		return map[string]any{"instance": "temperature_k", "value": 5600}
	}
	return map[string]any{"instance": "temperature_k", "value": int(math.Round(1e6 / value))}
}

func (c *Color) Action(req map[string]any) map[string]any {
	c.colorMode = toString(req["instance"]) == "rgb"

	if c.colorMode {
		value := resolvePaletteKey(toInt(req["value"]))
		p := parseRGB(value)
		return map[string]any{"color": []any{p.r, p.g, p.b}}
	}

	value := 1e6 / toFloat(req["value"])
	if toBool(req["relative"]) {
		value += toFloat(c.data["colorTemperature"])
	}
	return map[string]any{"colorTemperature": math.Round(value)}
}
