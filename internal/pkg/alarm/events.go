// Package alarm raises operational alarms over the internal message bus
// when a hub session goes silent or a device's availability flips,
// adapted from the teacher's internal/pkg/application/alarms package (the
// same open/close-alarm shape, repurposed from battery/observation alarms
// to hub connectivity). This is ambient operational tooling, not part of
// the wire protocol: the hub never sees these messages.
package alarm

import (
	"encoding/json"
	"time"
)

// HubSilent is raised when a hub session has produced no traffic for
// longer than the watchdog's staleness threshold.
type HubSilent struct {
	UniqueID  string    `json:"uniqueId"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *HubSilent) ContentType() string { return "application/json" }
func (a *HubSilent) TopicName() string   { return "alarms.hubSilent" }
func (a *HubSilent) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}

// HubRecovered closes a previously raised HubSilent alarm.
type HubRecovered struct {
	UniqueID  string    `json:"uniqueId"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *HubRecovered) ContentType() string { return "application/json" }
func (a *HubRecovered) TopicName() string   { return "alarms.hubRecovered" }
func (a *HubRecovered) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}

// DeviceUnavailable is raised when a device's availability flag flips to
// false while the owning hub session remains Ready.
type DeviceUnavailable struct {
	UniqueID  string    `json:"uniqueId"`
	DeviceKey string    `json:"deviceKey"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *DeviceUnavailable) ContentType() string { return "application/json" }
func (a *DeviceUnavailable) TopicName() string   { return "alarms.deviceUnavailable" }
func (a *DeviceUnavailable) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}
