package bridge

import "github.com/homed/cloud-bridge/internal/pkg/hub"

// buildDelta collects the capability/property states that changed since the
// last report for one endpoint, per spec §4.G's dataUpdated handling. The
// caller must hold ep's lock. Returns nil if nothing changed.
func buildDelta(ep *hub.Endpoint) map[string]any {
	var capabilities []any
	for _, c := range ep.Capabilities() {
		if !c.Updated() {
			continue
		}
		capabilities = append(capabilities, c.State())
		c.SetUpdated(false)
	}

	var properties []any
	for _, entry := range ep.Properties() {
		p := entry.Property
		if !p.Updated() {
			continue
		}

		state, ok := p.State()
		p.SetUpdated(false)
		if !ok {
			continue
		}
		properties = append(properties, state)

		// button/vibration are edge-triggered: once reported, the observed
		// click/tilt/drop must not be reported again on the next poll.
		if instance := p.Instance(); instance == "button" || instance == "vibration" {
			p.SetValue(nil)
		}
	}

	if len(capabilities) == 0 && len(properties) == 0 {
		return nil
	}

	delta := map[string]any{}
	if len(capabilities) > 0 {
		delta["capabilities"] = capabilities
	}
	if len(properties) > 0 {
		delta["properties"] = properties
	}
	return delta
}
