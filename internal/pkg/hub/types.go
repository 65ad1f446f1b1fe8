// Package hub implements the per-hub session state machine: handshake,
// authorization, and the publish/subscribe topic protocol that carries
// device inventory and telemetry, ported from original_source/client.cpp
// and client.h.
package hub

import (
	"sync"

	"github.com/homed/cloud-bridge/internal/pkg/devicemodel"
)

// Services enumerates the hub sub-buses a device key can belong to.
var Services = []string{"zigbee", "modbus", "custom"}

// Endpoint is a numeric sub-address within a Device. It implements
// expose.Endpoint so the translator can build it directly.
type Endpoint struct {
	mu sync.Mutex

	id      uint8
	device  *Device // non-owning: the device vouches for this endpoint's lifetime
	numeric bool

	typ     string
	exposes []string
	options map[string]any

	capabilities []devicemodel.Capability
	properties   map[string]devicemodel.Property
	// propertyOrder preserves insertion order for deterministic discovery
	// output, since Go maps don't.
	propertyOrder []string
}

// NewEndpoint builds an endpoint owned by device, addressed by id.
func NewEndpoint(id uint8, device *Device, numeric bool) *Endpoint {
	return &Endpoint{
		id:         id,
		device:     device,
		numeric:    numeric,
		options:    map[string]any{},
		properties: map[string]devicemodel.Property{},
	}
}

func (e *Endpoint) ID() uint8        { return e.id }
func (e *Endpoint) Device() *Device  { return e.device }
func (e *Endpoint) Numeric() bool    { return e.numeric }
func (e *Endpoint) Type() string     { return e.typ }
func (e *Endpoint) Exposes() []string { return e.exposes }
func (e *Endpoint) Options() map[string]any { return e.options }

// SetType assigns the endpoint's voice-assistant type. First-writer wins:
// once non-empty, later calls are no-ops.
func (e *Endpoint) SetType(value string) {
	if e.typ == "" {
		e.typ = value
	}
}

func (e *Endpoint) AddExpose(name string) {
	for _, v := range e.exposes {
		if v == name {
			return
		}
	}
	e.exposes = append(e.exposes, name)
}

func (e *Endpoint) AddCapability(c devicemodel.Capability) {
	e.capabilities = append(e.capabilities, c)
}

func (e *Endpoint) AddProperty(name string, p devicemodel.Property) {
	if _, exists := e.properties[name]; !exists {
		e.propertyOrder = append(e.propertyOrder, name)
	}
	e.properties[name] = p
}

func (e *Endpoint) Capabilities() []devicemodel.Capability { return e.capabilities }

// Properties returns the endpoint's properties keyed by wire instance name,
// in the order they were added.
func (e *Endpoint) Properties() []struct {
	Name     string
	Property devicemodel.Property
} {
	out := make([]struct {
		Name     string
		Property devicemodel.Property
	}, 0, len(e.propertyOrder))

	for _, name := range e.propertyOrder {
		out = append(out, struct {
			Name     string
			Property devicemodel.Property
		}{Name: name, Property: e.properties[name]})
	}

	return out
}

// Discoverable reports whether the endpoint has at least one capability or
// property to publish.
func (e *Endpoint) Discoverable() bool {
	return len(e.capabilities) > 0 || len(e.properties) > 0
}

// Lock/Unlock let callers serialize concurrent telemetry updates and state
// reads against the same endpoint (e.g. a data-update handler racing an
// HTTP query handler).
func (e *Endpoint) Lock()   { e.mu.Lock() }
func (e *Endpoint) Unlock() { e.mu.Unlock() }

// Device is a hub-reported device, scoped to one HubSession.
type Device struct {
	Key         string
	Topic       string
	Name        string
	Description string
	Available   bool

	Endpoints map[uint8]*Endpoint
}

// NewDevice builds a Device record; its key is unique within the owning
// session's device set.
func NewDevice(key, topic, name, description string) *Device {
	return &Device{
		Key:         key,
		Topic:       topic,
		Name:        name,
		Description: description,
		Endpoints:   map[uint8]*Endpoint{},
	}
}
