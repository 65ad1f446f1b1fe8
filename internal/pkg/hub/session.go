package hub

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cryptopkg "github.com/homed/cloud-bridge/internal/pkg/crypto"
	"github.com/homed/cloud-bridge/internal/pkg/expose"
	"github.com/homed/cloud-bridge/internal/pkg/framing"
)

// Status is the HubSession's lifecycle state.
type Status int

const (
	StatusHandshake Status = iota
	StatusAuthorization
	StatusReady
)

// AuthorizationTimeout bounds how long a session may remain unauthorized
// after accept before it is closed, per original_source/client.h's
// AUTHORIZATION_TIMEOUT (10000 ms).
const AuthorizationTimeout = 10 * time.Second

// Session is a live TCP connection to a hub, owned by at most one User once
// authorized. It owns its decrypt state and frame-assembly buffer
// exclusively; callers must never touch those from another goroutine.
type Session struct {
	conn   net.Conn
	log    zerolog.Logger
	cipher *cryptopkg.SessionCipher
	dec    *framing.Decoder

	writeMu sync.Mutex

	mu           sync.Mutex
	status       Status
	uniqueID     string
	devices      map[string]*Device
	lastActivity time.Time

	timer *time.Timer

	// OnTokenReceived is invoked with the hex-decoded 32-byte clientToken
	// once the Authorization frame arrives. It returns true to accept the
	// hub; if it returns false the session is closed immediately.
	OnTokenReceived func(uniqueID string, token []byte) bool
	// OnDevicesUpdated fires whenever the status/ roster reconciliation
	// changes the device set.
	OnDevicesUpdated func(s *Session)
	// OnDataUpdated fires whenever an fd/ telemetry update changes a
	// capability or property value on device.
	OnDataUpdated func(s *Session, device *Device)
}

// NewSession wraps an accepted connection. The caller must call Serve to
// drive the handshake and subsequent protocol loop.
func NewSession(conn net.Conn, log zerolog.Logger) *Session {
	return &Session{
		conn:         conn,
		log:          log,
		dec:          &framing.Decoder{},
		devices:      map[string]*Device{},
		lastActivity: time.Now(),
	}
}

// LastActivity reports when the session last received a frame it could
// decrypt (whether or not its JSON then parsed), for the watchdog's
// staleness check.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) UniqueID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniqueID
}

// Devices returns a snapshot copy of the session's device map.
func (s *Session) Devices() map[string]*Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*Device, len(s.devices))
	for k, v := range s.devices {
		out[k] = v
	}
	return out
}

func (s *Session) Device(key string) (*Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[key]
	return d, ok
}

// SetUniqueID records the hub's authorization-time unique id without
// driving the rest of the handshake. Exposed for tests that exercise the
// registry/discovery layers without a full wire handshake.
func (s *Session) SetUniqueID(id string) {
	s.mu.Lock()
	s.uniqueID = id
	s.mu.Unlock()
}

// AddDevice registers a device directly, bypassing the status/ roster
// reconciliation in handleStatus. Exposed for the same reason as
// SetUniqueID.
func (s *Session) AddDevice(d *Device) {
	s.mu.Lock()
	s.devices[d.Key] = d
	s.mu.Unlock()
}

// findDevice matches a hub-sourced search string against a device's key or
// its topic, mirroring Client::findDevice's linear scan.
func (s *Session) findDevice(search string) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if strings.HasPrefix(search, d.Key) || strings.HasPrefix(search, d.Topic) {
			return d
		}
	}
	return nil
}

// Close tears the connection down; Serve's read loop will then return.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.conn.Close()
}

// Serve runs the handshake and then the framed protocol loop until the
// connection closes, the authorization deadline expires, or ctx is
// cancelled. It blocks the calling goroutine.
func (s *Session) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.timer = time.AfterFunc(AuthorizationTimeout, func() {
		s.log.Warn().Msg("hub session authorization timed out")
		_ = s.Close()
	})
	s.mu.Unlock()

	if err := s.handshake(); err != nil {
		return fmt.Errorf("hub: handshake failed: %w", err)
	}

	s.mu.Lock()
	s.status = StatusAuthorization
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			for _, frame := range s.dec.Feed(buf[:n]) {
				s.handleFrame(frame)
			}
		}
		if err != nil {
			return err
		}
	}
}

// handshake reads the 12-byte Diffie-Hellman request, derives the shared
// AES key/IV, and writes back the server's 32-bit public key. No framing
// is used for this exchange.
func (s *Session) handshake() error {
	var req [12]byte
	if _, err := readFull(s.conn, req[:]); err != nil {
		return err
	}

	prime := binary.BigEndian.Uint32(req[0:4])
	generator := binary.BigEndian.Uint32(req[4:8])
	hubPublic := binary.BigEndian.Uint32(req[8:12])

	dh, err := cryptopkg.NewDH(prime, generator)
	if err != nil {
		return err
	}

	serverPublic := dh.PublicKey()
	var reply [4]byte
	binary.BigEndian.PutUint32(reply[:], serverPublic)
	if _, err := s.conn.Write(reply[:]); err != nil {
		return err
	}

	shared := dh.SharedKey(hubPublic)
	var sharedBE [4]byte
	binary.BigEndian.PutUint32(sharedBE[:], shared)

	key, iv := cryptopkg.DeriveKeyIV(sharedBE[:])
	cipher, err := cryptopkg.NewSessionCipher(key, iv)
	if err != nil {
		return err
	}

	s.cipher = cipher
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// envelope is the wire shape of every framed message in both directions.
type envelope struct {
	Action  string          `json:"action,omitempty"`
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message,omitempty"`
}

func (s *Session) handleFrame(frame []byte) {
	plaintext, err := s.cipher.Decrypt(frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("hub: failed to decrypt frame")
		return
	}
	plaintext = trimTrailingZero(plaintext)

	s.mu.Lock()
	status := s.status
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if status == StatusAuthorization {
		s.handleAuthorization(plaintext)
		return
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		s.log.Warn().Err(err).Msg("hub: failed to parse frame json")
		return
	}

	switch {
	case strings.HasPrefix(env.Topic, "status/"):
		s.handleStatus(env)
	case strings.HasPrefix(env.Topic, "expose/"):
		s.handleExpose(env)
	case strings.HasPrefix(env.Topic, "device/"):
		s.handleDevice(env)
	case strings.HasPrefix(env.Topic, "fd/"):
		s.handleTelemetry(env)
	}
}

func trimTrailingZero(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

type authorizationPayload struct {
	UniqueID string `json:"uniqueId"`
	Token    string `json:"token"`
}

func (s *Session) handleAuthorization(raw []byte) {
	var payload authorizationPayload
	// the Authorization-state frame carries its fields at the top level,
	// not wrapped in the {topic, message} envelope Ready-state frames use,
	// per original_source's Client::parseData.
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn().Err(err).Msg("hub: malformed authorization frame")
		_ = s.Close()
		return
	}

	token, err := hex.DecodeString(payload.Token)
	if err != nil {
		s.log.Warn().Err(err).Msg("hub: malformed client token in authorization frame")
		_ = s.Close()
		return
	}

	if s.OnTokenReceived == nil || !s.OnTokenReceived(payload.UniqueID, token) {
		_ = s.Close()
		return
	}

	s.mu.Lock()
	s.uniqueID = payload.UniqueID
	s.status = StatusReady
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.sendRequest("subscribe", "status/#", nil)
}

func deviceKey(service string, item map[string]any) string {
	switch service {
	case "zigbee":
		return "zigbee/" + toStr(item["ieeeAddress"])
	case "modbus":
		return fmt.Sprintf("modbus/%d.%d", toInt(item["portId"]), toInt(item["slaveId"]))
	default:
		return "custom/" + toStr(item["id"])
	}
}

func toStr(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

type statusPayload struct {
	Devices []map[string]any `json:"devices"`
	Names   bool              `json:"names"`
}

func (s *Session) handleStatus(env envelope) {
	parts := strings.SplitN(env.Topic, "/", 2)
	if len(parts) != 2 {
		return
	}
	service := parts[1]

	valid := false
	for _, svc := range Services {
		if svc == service {
			valid = true
			break
		}
	}
	if !valid {
		return
	}

	var payload statusPayload
	if err := json.Unmarshal(env.Message, &payload); err != nil {
		return
	}

	roster := map[string]*Device{}
	for _, item := range payload.Devices {
		name := toStr(item["name"])
		cloud := true
		if v, ok := item["cloud"]; ok {
			cloud = toBool(v)
		}

		if name == "" || toBool(item["removed"]) || !cloud || name == "HOMEd Coordinator" {
			continue
		}

		key := deviceKey(service, item)
		displayName := toStr(item["id"])
		if payload.Names {
			displayName = name
		}
		topic := service + "/" + displayName

		roster[key] = NewDevice(key, topic, name, toStr(item["description"]))
	}

	var newTopics []string

	s.mu.Lock()
	changed := false
	for key, d := range roster {
		if existing, ok := s.devices[key]; ok {
			existing.Topic = d.Topic
			existing.Name = d.Name
			existing.Description = d.Description
			continue
		}

		s.devices[key] = d
		changed = true
		newTopics = append(newTopics, d.Topic)
	}

	for key, d := range s.devices {
		if strings.HasPrefix(d.Topic, service) {
			if _, present := roster[key]; !present {
				delete(s.devices, key)
				changed = true
			}
		}
	}
	s.mu.Unlock()

	for _, topic := range newTopics {
		s.sendRequest("subscribe", "expose/"+topic, nil)
		s.sendRequest("subscribe", "device/"+topic, nil)
	}

	if changed && s.OnDevicesUpdated != nil {
		s.OnDevicesUpdated(s)
	}
}

func (s *Session) handleExpose(env envelope) {
	topic := strings.TrimPrefix(env.Topic, "expose/")
	device := s.findDevice(topic)
	if device == nil || len(device.Endpoints) > 0 {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(env.Message, &raw); err != nil {
		return
	}

	var subscriptions []string

	for outerKey, v := range raw {
		var entry struct {
			Options map[string]any `json:"options"`
			Items   []string       `json:"items"`
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			continue
		}

		for _, item := range entry.Items {
			exposeName, id, numeric := expose.SplitNumericExpose(item)
			if !numeric {
				outerID, _ := strconv.Atoi(outerKey)
				id = uint8(outerID)
			}

			ep, ok := device.Endpoints[id]
			if !ok {
				ep = NewEndpoint(id, device, numeric)

				for optKey, optValue := range entry.Options {
					name, optID, hasSuffix := expose.SplitNumericExpose(optKey)
					if hasSuffix && optID != id {
						continue
					}
					ep.options[name] = optValue
				}

				device.Endpoints[id] = ep
			}

			if yandexType, ok := entry.Options["yandexType"].(string); ok {
				ep.SetType(yandexType)
			}

			ep.AddExpose(exposeName)

			subscription := "fd/" + device.Topic
			if ep.id != 0 && !ep.numeric {
				subscription += "/" + strconv.Itoa(int(ep.id))
			}

			found := false
			for _, sub := range subscriptions {
				if sub == subscription {
					found = true
					break
				}
			}
			if !found {
				subscriptions = append(subscriptions, subscription)
			}
		}
	}

	for _, ep := range device.Endpoints {
		expose.ParseExposes(ep)
	}

	for _, sub := range subscriptions {
		s.sendRequest("subscribe", sub, nil)
	}

	serviceTopic := device.Topic[:strings.LastIndexByte(device.Topic, '/')]
	deviceID := device.Topic[strings.LastIndexByte(device.Topic, '/')+1:]
	s.sendRequest("publish", "command/"+serviceTopic, map[string]any{
		"action":  "getProperties",
		"device":  deviceID,
		"service": "cloud",
	})
}

func (s *Session) handleDevice(env envelope) {
	topic := strings.TrimPrefix(env.Topic, "device/")
	device := s.findDevice(topic)
	if device == nil {
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(env.Message, &payload)
	device.Available = payload.Status == "online"
}

func (s *Session) handleTelemetry(env envelope) {
	topic := strings.TrimPrefix(env.Topic, "fd/")
	device := s.findDevice(topic)
	if device == nil {
		return
	}

	var data map[string]any
	if err := json.Unmarshal(env.Message, &data); err != nil {
		return
	}

	fallbackID := 0
	if idx := strings.LastIndexByte(topic, '/'); idx >= 0 {
		if n, err := strconv.Atoi(topic[idx+1:]); err == nil {
			fallbackID = n
		}
	}

	changed := false
	for key, value := range data {
		name, id, numeric := expose.SplitNumericExpose(key)
		if !numeric {
			id = uint8(fallbackID)
		}

		ep, ok := device.Endpoints[id]
		if !ok {
			continue
		}

		ep.Lock()
		for _, c := range ep.capabilities {
			if _, tracked := c.Data()[name]; tracked && !equalWire(c.Data()[name], value) {
				c.Data()[name] = value
				c.SetUpdated(true)
				changed = true
			}
		}

		if prop, ok := ep.properties[name]; ok && !equalWire(prop.Value(), value) {
			prop.SetValue(value)
			prop.SetUpdated(true)
			changed = true
		}
		ep.Unlock()
	}

	if changed && s.OnDataUpdated != nil {
		s.OnDataUpdated(s, device)
	}
}

func equalWire(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// sendRequest builds the {action, topic, message?} envelope, serializes,
// encrypts, frames, and writes it. Writes are serialized: the session is a
// single producer on its socket, and the AES IV must advance in send order.
func (s *Session) sendRequest(action, topic string, message map[string]any) {
	if s.cipher == nil {
		s.log.Warn().Str("topic", topic).Msg("hub: no session cipher, dropping outbound envelope")
		return
	}

	payload := map[string]any{"action": action, "topic": topic}
	if action == "publish" && len(message) > 0 {
		payload["message"] = message
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("hub: failed to marshal outbound envelope")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ciphertext := s.cipher.Encrypt(buf)
	frame := framing.Encode(ciphertext)

	if _, err := s.conn.Write(frame); err != nil {
		s.log.Warn().Err(err).Msg("hub: failed to write frame")
	}
}

// Publish sends a capability/property state patch to the hub for the given
// endpoint, either flattened with a numeric suffix (numeric endpoints) or
// as a path-segmented topic (non-numeric endpoints), per
// Client::publish.
func (s *Session) Publish(ep *Endpoint, patch map[string]any) {
	if ep.numeric {
		flattened := make(map[string]any, len(patch))
		for k, v := range patch {
			flattened[fmt.Sprintf("%s_%d", k, ep.id)] = v
		}
		s.sendRequest("publish", "td/"+ep.device.Topic, flattened)
		return
	}

	topic := ep.device.Topic
	if ep.id != 0 {
		topic += "/" + strconv.Itoa(int(ep.id))
	}
	s.sendRequest("publish", "td/"+topic, patch)
}
