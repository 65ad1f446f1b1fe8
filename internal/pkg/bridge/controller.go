// Package bridge is the session/user registry tying the hub session
// protocol (package hub) to the User/token manager (package user): it
// accepts hub connections, links them to a User once authorized, and
// forwards session events to the upstream skill notifier, per spec §4.E,
// §4.G and §5's controller-confinement rule.
package bridge

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/hub"
	"github.com/homed/cloud-bridge/internal/pkg/user"
)

// UpstreamNotifier delivers the fire-and-forget discovery/state upcalls to
// the voice-assistant skill endpoint (spec §4.G, §6). Implementations must
// not block the caller; failures are logged and dropped (spec §5, §7).
type UpstreamNotifier interface {
	NotifyDiscovery(ctx context.Context, chat int64)
	NotifyState(ctx context.Context, chat int64, endpointID string, delta map[string]any)
}

type ownedSession struct {
	chat int64
	sess *hub.Session
}

// Controller owns every live hub Session and the chat->session(s) linkage
// established during authorization. The map is confined behind mu, per
// spec §5/§9's "global mutable state" note; a single Controller is shared
// by every accepted connection's goroutine.
type Controller struct {
	log      zerolog.Logger
	users    *user.Manager
	notifier UpstreamNotifier

	mu       sync.Mutex
	sessions map[string]*ownedSession // hub uniqueId -> owning chat + session
}

// NewController builds a Controller. notifier may be nil, in which case
// devicesUpdated/dataUpdated events are simply dropped (useful for tests).
func NewController(users *user.Manager, notifier UpstreamNotifier, log zerolog.Logger) *Controller {
	return &Controller{
		log:      log,
		users:    users,
		notifier: notifier,
		sessions: map[string]*ownedSession{},
	}
}

// Serve runs the TCP accept loop against ln until ctx is cancelled. Each
// accepted connection is handled on its own goroutine; accept errors other
// than a context cancellation are returned to the caller.
func (c *Controller) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		go c.handleConn(ctx, conn)
	}
}

// handleConn drives one hub connection end to end: handshake, the
// authorization wait, and the Ready-state protocol loop, until the
// connection closes or ctx is cancelled.
func (c *Controller) handleConn(ctx context.Context, conn net.Conn) {
	log := c.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	sess := hub.NewSession(conn, log)

	var chat int64
	var uniqueID string

	sess.OnTokenReceived = func(id string, token []byte) bool {
		u, ok := c.users.FindByClientToken(token)
		if !ok {
			log.Warn().Str("uniqueId", id).Msg("bridge: unrecognized client token, closing session")
			return false
		}

		chat = u.Chat
		uniqueID = id
		c.register(id, chat, sess)
		log.Info().Str("uniqueId", id).Int64("chat", chat).Msg("bridge: hub session authorized")
		return true
	}

	sess.OnDevicesUpdated = func(s *hub.Session) {
		if c.notifier != nil {
			c.notifier.NotifyDiscovery(ctx, chat)
		}
	}

	sess.OnDataUpdated = func(s *hub.Session, device *hub.Device) {
		c.notifyDataUpdated(ctx, chat, s, device)
	}

	if err := sess.Serve(ctx); err != nil {
		log.Debug().Err(err).Msg("bridge: hub session ended")
	}

	if uniqueID != "" {
		c.unregister(uniqueID)
	}
}

func (c *Controller) register(uniqueID string, chat int64, sess *hub.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[uniqueID] = &ownedSession{chat: chat, sess: sess}
}

// Register links an already-authorized hub session to chat. It is the same
// bootstrap path handleConn uses once OnTokenReceived succeeds, exported so
// callers outside this package (tests, and anything seeding sessions outside
// the normal accept loop) can populate the registry directly.
func (c *Controller) Register(uniqueID string, chat int64, sess *hub.Session) {
	c.register(uniqueID, chat, sess)
}

func (c *Controller) unregister(uniqueID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, uniqueID)
}

// SessionsFor returns every Ready-or-later session owned by chat.
func (c *Controller) SessionsFor(chat int64) []*hub.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*hub.Session
	for _, os := range c.sessions {
		if os.chat == chat {
			out = append(out, os.sess)
		}
	}
	return out
}

// SessionInfo is one registry entry, for callers (the watchdog) that need
// to scan every live session regardless of owning chat.
type SessionInfo struct {
	UniqueID string
	Chat     int64
	Session  *hub.Session
}

// AllSessions returns a snapshot of every currently registered session.
func (c *Controller) AllSessions() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SessionInfo, 0, len(c.sessions))
	for uniqueID, os := range c.sessions {
		out = append(out, SessionInfo{UniqueID: uniqueID, Chat: os.chat, Session: os.sess})
	}
	return out
}

// SessionByUniqueID looks up a chat's session by the hub's authorization-
// time unique id, refusing sessions owned by a different user.
func (c *Controller) SessionByUniqueID(chat int64, uniqueID string) (*hub.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	os, ok := c.sessions[uniqueID]
	if !ok || os.chat != chat {
		return nil, false
	}
	return os.sess, true
}

// Resolve decodes a wire device id (spec §4.G) against chat's sessions and
// returns the owning session, device and endpoint. ok is false if the
// uniqueId is unknown to this chat, the device key is unknown to that
// session, or the id's endpoint segment (explicit or inferred) doesn't
// match exactly one endpoint.
func (c *Controller) Resolve(chat int64, wireID string) (sess *hub.Session, device *hub.Device, ep *hub.Endpoint, ok bool) {
	uniqueID, deviceKey, endpointID, hasEndpoint, parsed := hub.ParseWireDeviceID(wireID)
	if !parsed {
		return nil, nil, nil, false
	}

	sess, ok = c.SessionByUniqueID(chat, uniqueID)
	if !ok {
		return nil, nil, nil, false
	}

	device, ok = sess.Device(deviceKey)
	if !ok {
		return sess, nil, nil, false
	}

	if !hasEndpoint {
		if len(device.Endpoints) != 1 {
			return sess, device, nil, false
		}
		for _, only := range device.Endpoints {
			return sess, device, only, true
		}
	}

	ep, ok = device.Endpoints[endpointID]
	return sess, device, ep, ok
}

// notifyDataUpdated builds the per-endpoint delta of changed capabilities
// and properties for device, resets their `updated` flags, and hands it to
// the notifier. Edge-triggered properties (button, vibration) have their
// value cleared immediately after being reported, per spec §4.G.
func (c *Controller) notifyDataUpdated(ctx context.Context, chat int64, sess *hub.Session, device *hub.Device) {
	if c.notifier == nil {
		return
	}

	multi := len(device.Endpoints) > 1

	for id, ep := range device.Endpoints {
		ep.Lock()
		delta := buildDelta(ep)
		ep.Unlock()

		if delta == nil {
			continue
		}

		wireID := hub.WireDeviceID(sess.UniqueID(), device, id, multi)
		c.notifier.NotifyState(ctx, chat, wireID, delta)
	}
}
