package watchdog

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/crypto"
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

func TestCheckSilenceRaisesThenClearsOnRecovery(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)

	server, _ := net.Pipe()
	sess := hub.NewSession(server, zerolog.Nop())
	ctl.Register("hub-1", 1, sess)

	w := New(ctl, nil, zerolog.Nop())
	w.threshold = time.Millisecond

	info := bridge.SessionInfo{UniqueID: "hub-1", Chat: 1, Session: sess}
	time.Sleep(2 * time.Millisecond)

	w.checkSilence(context.Background(), info, time.Now())
	is.True(w.silent["hub-1"])

	// a sweep timed at the session's last activity sees it as fresh again
	w.checkSilence(context.Background(), info, sess.LastActivity())
	is.True(!w.silent["hub-1"])
}

func TestCheckDeviceAvailabilityRaisesOnlyOnFlip(t *testing.T) {
	is := is.New(t)
	ctl := newController(t)

	server, _ := net.Pipe()
	sess := hub.NewSession(server, zerolog.Nop())
	device := hub.NewDevice("zigbee/aabb", "zigbee/lamp", "Lamp", "")
	device.Available = true
	sess.AddDevice(device)
	ctl.Register("hub-1", 1, sess)

	w := New(ctl, nil, zerolog.Nop())
	info := bridge.SessionInfo{UniqueID: "hub-1", Chat: 1, Session: sess}

	w.checkDeviceAvailability(context.Background(), info)
	is.Equal(len(w.deviceAvailable), 1)

	device.Available = false
	w.checkDeviceAvailability(context.Background(), info)
	is.Equal(w.deviceAvailable["hub-1/zigbee/aabb"], false)
}
