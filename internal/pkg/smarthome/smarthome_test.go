package smarthome

import (
	"net"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/crypto"
	"github.com/homed/cloud-bridge/internal/pkg/devicemodel"
	"github.com/homed/cloud-bridge/internal/pkg/hub"
	"github.com/homed/cloud-bridge/internal/pkg/persistence"
	"github.com/homed/cloud-bridge/internal/pkg/user"
)

type fakeStore struct{ rows map[int64]persistence.UserRecord }

func (f *fakeStore) LoadUsers() ([]persistence.UserRecord, error) {
	out := make([]persistence.UserRecord, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeStore) SaveUser(u persistence.UserRecord) error { f.rows[u.Chat] = u; return nil }
func (f *fakeStore) DeleteUser(chat int64) error             { delete(f.rows, chat); return nil }

func newController(t *testing.T) *bridge.Controller {
	t.Helper()
	global, err := crypto.NewGlobalCipher([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	users, err := user.New(&fakeStore{rows: map[int64]persistence.UserRecord{}}, global, "client-id")
	if err != nil {
		t.Fatal(err)
	}
	return bridge.NewController(users, nil, zerolog.Nop())
}

func newLampSession(t *testing.T, ctl *bridge.Controller, chat int64, uniqueID string) (*hub.Session, *hub.Device) {
	t.Helper()
	server, _ := net.Pipe()
	sess := hub.NewSession(server, zerolog.Nop())
	ctl.Register(uniqueID, chat, sess)

	device := hub.NewDevice("zigbee/aabb", "zigbee/lamp", "Lamp", "kitchen")
	ep := hub.NewEndpoint(0, device, false)
	ep.SetType("devices.types.light")
	ep.AddCapability(devicemodel.NewSwitch())
	device.Endpoints[0] = ep
	device.Available = true

	sess.AddDevice(device)
	sess.SetUniqueID(uniqueID)

	return sess, device
}

func TestListDevicesOmitsNonDiscoverableEndpoints(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)
	_, device := newLampSession(t, ctl, 1, "hub-1")

	bare := hub.NewEndpoint(1, device, true)
	device.Endpoints[1] = bare

	devices := ListDevices(ctl, 1)
	is.Equal(len(devices), 1)
	is.Equal(devices[0].ID, "hub-1/zigbee/aabb")
	is.Equal(devices[0].DeviceInfo.Model, "Lamp (kitchen)")
	is.Equal(len(devices[0].Capabilities), 1)
	is.Equal(devices[0].Capabilities[0].Type, "devices.capabilities.on_off")
}

func TestQueryDeviceUnreachableWhenUnavailable(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)
	_, device := newLampSession(t, ctl, 1, "hub-1")
	device.Available = false

	_, err := QueryDevice(ctl, 1, "hub-1/zigbee/aabb")
	is.Equal(err, ErrDeviceUnreachable)
}

func TestQueryDeviceNotFoundForUnknownKey(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)
	newLampSession(t, ctl, 1, "hub-1")

	_, err := QueryDevice(ctl, 1, "hub-1/zigbee/ffff")
	is.Equal(err, ErrDeviceNotFound)
}

func TestActionDeviceDispatchesMatchingCapability(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)
	newLampSession(t, ctl, 1, "hub-1")

	err := ActionDevice(ctl, 1, "hub-1/zigbee/aabb", []ActionRequest{
		{Type: "devices.capabilities.on_off", State: map[string]any{"instance": "on", "value": true}},
	})
	is.NoErr(err)
}

func TestActionDeviceUnreachableWhenNoCapabilityMatches(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)
	newLampSession(t, ctl, 1, "hub-1")

	err := ActionDevice(ctl, 1, "hub-1/zigbee/aabb", []ActionRequest{
		{Type: "devices.capabilities.color_setting", State: map[string]any{"instance": "rgb", "value": 0}},
	})
	is.Equal(err, ErrDeviceUnreachable)
}
