// Package smarthome implements the device discovery/query/action business
// logic behind the voice-assistant-facing HTTP surface (spec §4.G): it walks
// a user's hub sessions and renders their devices/endpoints into the wire
// shapes the skill expects, and dispatches actions back down onto the
// owning hub session.
package smarthome

import (
	"errors"
	"strconv"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/devicemodel"
	"github.com/homed/cloud-bridge/internal/pkg/hub"
)

// ErrDeviceNotFound and ErrDeviceUnreachable map directly onto the wire
// error codes the query/action endpoints must return (spec §4.G, §7).
var (
	ErrDeviceNotFound    = errors.New("DEVICE_NOT_FOUND")
	ErrDeviceUnreachable = errors.New("DEVICE_UNREACHABLE")
)

// Device is one discoverable endpoint rendered for GET /user/devices.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Capabilities []CapabilityState `json:"capabilities,omitempty"`
	Properties   []PropertyState   `json:"properties,omitempty"`
	DeviceInfo   DeviceInfo     `json:"device_info"`
}

// DeviceInfo carries the "model" hint built from the device's name and
// description (spec §4.G).
type DeviceInfo struct {
	Model string `json:"model"`
}

// CapabilityState is the wire envelope contributed by one capability:
// {type, retrievable, reportable, parameters?, state}.
type CapabilityState struct {
	Type        string         `json:"type"`
	Retrievable bool           `json:"retrievable"`
	Reportable  bool           `json:"reportable"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	State       map[string]any `json:"state,omitempty"`
}

// PropertyState is the same envelope shape for a property; State is omitted
// entirely when the property has no valid observation yet.
type PropertyState struct {
	Type        string         `json:"type"`
	Retrievable bool           `json:"retrievable"`
	Reportable  bool           `json:"reportable"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	State       map[string]any `json:"state,omitempty"`
}

// ListDevices walks every session owned by chat and renders each
// discoverable endpoint as a Device, per spec §4.G.
func ListDevices(ctl *bridge.Controller, chat int64) []Device {
	var out []Device

	for _, sess := range ctl.SessionsFor(chat) {
		uniqueID := sess.UniqueID()
		for _, device := range sess.Devices() {
			multi := len(device.Endpoints) > 1
			for id, ep := range device.Endpoints {
				if !ep.Discoverable() {
					continue
				}
				out = append(out, renderDevice(uniqueID, device, id, ep, multi))
			}
		}
	}

	return out
}

func renderDevice(uniqueID string, device *hub.Device, id uint8, ep *hub.Endpoint, multi bool) Device {
	device_ := Device{
		ID:   hub.WireDeviceID(uniqueID, device, id, multi),
		Name: deviceName(device, id, multi),
		Type: ep.Type(),
	}

	model := device.Name
	if device.Description != "" {
		model += " (" + device.Description + ")"
	}
	device_.DeviceInfo = DeviceInfo{Model: model}

	ep.Lock()
	defer ep.Unlock()

	for _, c := range ep.Capabilities() {
		device_.Capabilities = append(device_.Capabilities, CapabilityState{
			Type:        c.Type(),
			Retrievable: true,
			Reportable:  true,
			Parameters:  nilIfEmpty(c.Parameters()),
			State:       c.State(),
		})
	}

	for _, entry := range ep.Properties() {
		p := entry.Property
		state, ok := p.State()
		ps := PropertyState{
			Type:        p.Type(),
			Retrievable: true,
			Reportable:  true,
			Parameters:  nilIfEmpty(p.Parameters()),
		}
		if ok {
			ps.State = state
		}
		device_.Properties = append(device_.Properties, ps)
	}

	return device_
}

func deviceName(device *hub.Device, id uint8, multi bool) string {
	if !multi {
		return device.Name
	}
	return device.Name + " " + strconv.Itoa(int(id))
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// QueryDevice resolves a single wire device id against chat's sessions and
// reports its current capability/property states (spec §4.G).
func QueryDevice(ctl *bridge.Controller, chat int64, wireID string) (Device, error) {
	sess, device, ep, ok := ctl.Resolve(chat, wireID)
	if !ok {
		if sess != nil && device != nil {
			return Device{}, ErrDeviceUnreachable
		}
		return Device{}, ErrDeviceNotFound
	}
	if !device.Available {
		return Device{}, ErrDeviceUnreachable
	}

	uniqueID, _, endpointID, _, _ := hub.ParseWireDeviceID(wireID)
	multi := len(device.Endpoints) > 1
	if !multi {
		endpointID = ep.ID()
	}

	return renderDevice(uniqueID, device, endpointID, ep, multi), nil
}

// ActionRequest is one capability action to dispatch against a resolved
// device (spec §4.G): {type, state}, where state is the capability's own
// action-request shape (e.g. {instance, value}).
type ActionRequest struct {
	Type  string
	State map[string]any
}

// ActionDevice resolves wireID and dispatches every request whose type
// matches an endpoint capability, publishing the resulting hub-native patch
// on the owning session. It returns nil (meaning "DONE") if at least one
// capability matched on an available endpoint.
func ActionDevice(ctl *bridge.Controller, chat int64, wireID string, requests []ActionRequest) error {
	sess, device, ep, ok := ctl.Resolve(chat, wireID)
	if !ok {
		if sess != nil && device != nil {
			return ErrDeviceUnreachable
		}
		return ErrDeviceNotFound
	}
	if !device.Available {
		return ErrDeviceUnreachable
	}

	ep.Lock()
	caps := ep.Capabilities()
	ep.Unlock()

	var matched bool
	for _, req := range requests {
		cap_ := findCapability(caps, req.Type)
		if cap_ == nil {
			continue
		}
		matched = true
		patch := cap_.Action(req.State)
		sess.Publish(ep, patch)
	}

	if !matched {
		return ErrDeviceUnreachable
	}
	return nil
}

func findCapability(caps []devicemodel.Capability, typ string) devicemodel.Capability {
	for _, c := range caps {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}
