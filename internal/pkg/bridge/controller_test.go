package bridge

import (
	"net"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

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

func newTestController(t *testing.T) *Controller {
	t.Helper()
	global, err := crypto.NewGlobalCipher([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	users, err := user.New(&fakeStore{rows: map[int64]persistence.UserRecord{}}, global, "client-id")
	if err != nil {
		t.Fatal(err)
	}
	return NewController(users, nil, zerolog.Nop())
}

func TestResolveRejectsUnknownSession(t *testing.T) {
	is := is.New(t)
	c := newTestController(t)

	_, _, _, ok := c.Resolve(1, "hub-1/zigbee/foo")
	is.True(!ok)
}

func TestResolveSingleEndpointDeviceOmitsSuffix(t *testing.T) {
	is := is.New(t)
	c := newTestController(t)

	server, _ := net.Pipe()
	sess := hub.NewSession(server, zerolog.Nop())
	c.register("hub-1", 42, sess)

	device := hub.NewDevice("zigbee/aabb", "zigbee/lamp", "Lamp", "")
	ep := hub.NewEndpoint(0, device, false)
	ep.AddCapability(devicemodel.NewSwitch())
	device.Endpoints[0] = ep
	sess.AddDevice(device)
	sess.SetUniqueID("hub-1")

	gotSess, gotDevice, gotEP, ok := c.Resolve(42, "hub-1/zigbee/aabb")
	is.True(ok)
	is.Equal(gotSess, sess)
	is.Equal(gotDevice, device)
	is.Equal(gotEP, ep)

	_, _, _, ok = c.Resolve(99, "hub-1/zigbee/aabb")
	is.True(!ok)
}

func TestSessionsForOnlyReturnsOwnedSessions(t *testing.T) {
	is := is.New(t)
	c := newTestController(t)

	s1, _ := net.Pipe()
	s2, _ := net.Pipe()
	sessA := hub.NewSession(s1, zerolog.Nop())
	sessB := hub.NewSession(s2, zerolog.Nop())

	c.register("hub-a", 1, sessA)
	c.register("hub-b", 2, sessB)

	is.Equal(len(c.SessionsFor(1)), 1)
	is.Equal(c.SessionsFor(1)[0], sessA)
	is.Equal(len(c.SessionsFor(2)), 1)
	is.Equal(len(c.SessionsFor(3)), 0)
}
