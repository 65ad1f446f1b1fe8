// Package user implements the User/AuthorizationCode/token lifecycle of
// spec §3 and §4.F: users, client-tokens, one-shot authorization codes, and
// cipher-wrapped access/refresh tokens, backed by persistence.Datastore.
package user

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/homed/cloud-bridge/internal/pkg/crypto"
	"github.com/homed/cloud-bridge/internal/pkg/persistence"
)

// BotStatus is the provisioning-bot FSM state described in SPEC_FULL §4.F,
// driven by the Telegram /start, /renew, /remove, /confirm, /cancel,
// /getid commands.
type BotStatus int

const (
	BotIdle BotStatus = iota
	BotRenew
	BotRemove
)

// CodeTTL is the one-shot authorization code lifetime (spec §3).
const CodeTTL = 60 * time.Second

// AccessTokenTTL is the access-token lifetime: 100 days, per spec §6.
const AccessTokenTTL = 8_640_000 * time.Second

// User is a provisioned human account, identified by a chat-id from the
// Telegram provisioning channel.
type User struct {
	Chat int64
	Name string
	Hash string // salted password hash

	ClientToken []byte // 32 bytes, shared secret hub<->cloud

	AccessToken  []byte // 32 bytes
	RefreshToken []byte // 32 bytes
	TokenExpire  int64  // absolute unix seconds; 0 means unlinked

	CodeExpire int64 // absolute unix seconds for a pending authorization code; 0 = none

	BotStatus BotStatus
}

// authCode maps a one-shot 32-byte code to the user who produced it.
type authCode struct {
	userChat int64
	expires  time.Time
}

// Manager owns the in-memory User table and the authorization-code table,
// confined to a single mutex the way SPEC_FULL's controller-confinement note
// (spec §5, §9) requires of the global users/codes maps.
type Manager struct {
	mu    sync.Mutex
	users map[int64]*User
	codes map[string]authCode // hex(code) -> authCode

	db     persistence.Datastore
	global *crypto.GlobalCipher

	clientID string
}

// New loads all users from db and builds a Manager. global is the
// process-wide cipher keyed by the OAuth client_secret (spec §4.F); clientID
// is the OAuth client_id every token request must present.
func New(db persistence.Datastore, global *crypto.GlobalCipher, clientID string) (*Manager, error) {
	rows, err := db.LoadUsers()
	if err != nil {
		return nil, fmt.Errorf("user: failed to load users: %w", err)
	}

	m := &Manager{
		users:    map[int64]*User{},
		codes:    map[string]authCode{},
		db:       db,
		global:   global,
		clientID: clientID,
	}

	for _, r := range rows {
		m.users[r.Chat] = recordToUser(r)
	}

	return m, nil
}

func recordToUser(r persistence.UserRecord) *User {
	u := &User{
		Chat:        r.Chat,
		Name:        r.Name,
		Hash:        r.Hash,
		TokenExpire: r.TokenExpire,
	}
	u.ClientToken, _ = hex.DecodeString(r.ClientToken)
	u.AccessToken, _ = hex.DecodeString(r.AccessToken)
	u.RefreshToken, _ = hex.DecodeString(r.RefreshToken)
	return u
}

func (u *User) toRecord() persistence.UserRecord {
	return persistence.UserRecord{
		Chat:         u.Chat,
		Name:         u.Name,
		Hash:         u.Hash,
		ClientToken:  hex.EncodeToString(u.ClientToken),
		AccessToken:  hex.EncodeToString(u.AccessToken),
		RefreshToken: hex.EncodeToString(u.RefreshToken),
		TokenExpire:  u.TokenExpire,
	}
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("user: failed to generate random bytes: %w", err)
	}
	return b, nil
}

// FindByName does a linear scan by display name; the user population is
// small enough that this is the simplest correct design (spec §4.F).
func (m *Manager) FindByName(name string) (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Name == name {
			return u, true
		}
	}
	return nil, false
}

// FindByChat looks a user up by their chat-id primary key.
func (m *Manager) FindByChat(chat int64) (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[chat]
	return u, ok
}

// FindByClientToken matches a hub's authorization-frame token (already
// hex-decoded by the caller) against every user's clientToken. Used by the
// hub session's OnTokenReceived callback.
func (m *Manager) FindByClientToken(token []byte) (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if len(u.ClientToken) == len(token) && hexEqual(u.ClientToken, token) {
			return u, true
		}
	}
	return nil, false
}

func hexEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FindByBearer implements spec §4.F's `findUser("Bearer <hex>")`: hex-decode
// the token, AES-CBC decrypt with the global cipher, and match the result
// against unexpired access tokens.
func (m *Manager) FindByBearer(bearer string) (*User, bool) {
	raw, err := hex.DecodeString(bearer)
	if err != nil {
		return nil, false
	}

	plain, err := m.global.Decrypt(raw)
	if err != nil {
		return nil, false
	}

	now := time.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.TokenExpire == 0 || u.TokenExpire < now {
			continue
		}
		if len(u.AccessToken) > 0 && hasPrefix(plain, u.AccessToken) {
			return u, true
		}
	}
	return nil, false
}

// hasPrefix reports whether plain starts with token; the global cipher's
// zero-padding means a decrypted 32-byte token is followed by zero or more
// NUL bytes, never by other significant data.
func hasPrefix(plain, token []byte) bool {
	if len(plain) < len(token) {
		return false
	}
	return hexEqual(plain[:len(token)], token)
}

// VerifyPassword checks password against a User.Hash built by provision:
// the first 32 hex characters are the salt, the rest is MD5(salt+password),
// per original_source/controller.cpp's requestReceived `/login` branch.
func VerifyPassword(hash, password string) bool {
	if len(hash) != 64 {
		return false
	}

	salt, err := hex.DecodeString(hash[:32])
	if err != nil {
		return false
	}

	sum := md5.Sum(append(append([]byte{}, salt...), password...))
	return hash[32:] == hex.EncodeToString(sum[:])
}

// IssueAuthorizationCode mints a 32-byte one-shot code for user, valid for
// CodeTTL, and returns its hex-encrypted form for the login redirect URL
// (spec §4.F).
func (m *Manager) IssueAuthorizationCode(user *User) (string, error) {
	code, err := randomBytes(32)
	if err != nil {
		return "", err
	}

	expires := time.Now().Add(CodeTTL)

	m.mu.Lock()
	m.codes[hex.EncodeToString(code)] = authCode{userChat: user.Chat, expires: expires}
	user.CodeExpire = expires.Unix()
	m.mu.Unlock()

	return hex.EncodeToString(m.global.Encrypt(code)), nil
}

// TokenPair is the encrypted hex access/refresh pair returned to the OAuth
// client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

var (
	// ErrBadClient is returned when client_id does not match.
	ErrBadClient = fmt.Errorf("user: client_id mismatch")
	// ErrBadGrant is returned for an invalid/expired/consumed code or
	// refresh token.
	ErrBadGrant = fmt.Errorf("user: invalid grant")
)

// ExchangeCode consumes a one-shot authorization code (authorization_code
// grant) and mints a fresh access/refresh pair.
func (m *Manager) ExchangeCode(clientID, encryptedCode string) (TokenPair, error) {
	if clientID != m.clientID {
		return TokenPair{}, ErrBadClient
	}

	raw, err := hex.DecodeString(encryptedCode)
	if err != nil {
		return TokenPair{}, ErrBadGrant
	}

	code, err := m.global.Decrypt(raw)
	if err != nil {
		return TokenPair{}, ErrBadGrant
	}
	if len(code) < 32 {
		return TokenPair{}, ErrBadGrant
	}

	key := hex.EncodeToString(code[:32])

	m.mu.Lock()
	entry, ok := m.codes[key]
	if ok {
		delete(m.codes, key)
	}
	m.mu.Unlock()

	if !ok || time.Now().After(entry.expires) {
		return TokenPair{}, ErrBadGrant
	}

	u, ok := m.FindByChat(entry.userChat)
	if !ok {
		return TokenPair{}, ErrBadGrant
	}

	return m.rotateTokens(u)
}

// ExchangeRefresh rotates the access/refresh pair for the user owning
// refreshToken (refresh_token grant), invalidating the previous pair.
func (m *Manager) ExchangeRefresh(clientID, encryptedRefreshToken string) (TokenPair, error) {
	if clientID != m.clientID {
		return TokenPair{}, ErrBadClient
	}

	raw, err := hex.DecodeString(encryptedRefreshToken)
	if err != nil {
		return TokenPair{}, ErrBadGrant
	}

	token, err := m.global.Decrypt(raw)
	if err != nil {
		return TokenPair{}, ErrBadGrant
	}

	now := time.Now().Unix()

	m.mu.Lock()
	var match *User
	for _, u := range m.users {
		if u.TokenExpire > 0 && u.TokenExpire >= now && len(u.RefreshToken) > 0 && hasPrefix(token, u.RefreshToken) {
			match = u
			break
		}
	}
	m.mu.Unlock()

	if match == nil {
		return TokenPair{}, ErrBadGrant
	}

	return m.rotateTokens(match)
}

func (m *Manager) rotateTokens(u *User) (TokenPair, error) {
	access, err := randomBytes(32)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := randomBytes(32)
	if err != nil {
		return TokenPair{}, err
	}

	m.mu.Lock()
	u.AccessToken = access
	u.RefreshToken = refresh
	u.TokenExpire = time.Now().Add(AccessTokenTTL).Unix()
	record := u.toRecord()
	m.mu.Unlock()

	if err := m.db.SaveUser(record); err != nil {
		return TokenPair{}, fmt.Errorf("user: failed to persist rotated tokens: %w", err)
	}

	return TokenPair{
		AccessToken:  hex.EncodeToString(m.global.Encrypt(access)),
		RefreshToken: hex.EncodeToString(m.global.Encrypt(refresh)),
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
	}, nil
}

// Unlink clears a user's access/refresh/tokenExpire without destroying the
// User record (spec §3, §4.F).
func (m *Manager) Unlink(u *User) error {
	m.mu.Lock()
	u.AccessToken = nil
	u.RefreshToken = nil
	u.TokenExpire = 0
	record := u.toRecord()
	m.mu.Unlock()

	return m.db.SaveUser(record)
}

// SweepExpiredCodes removes authorization codes past their deadline. The
// controller calls this once a second (spec §4.F, §5).
func (m *Manager) SweepExpiredCodes() {
	now := time.Now()

	m.mu.Lock()
	for k, v := range m.codes {
		if now.After(v.expires) {
			delete(m.codes, k)
		}
	}
	m.mu.Unlock()
}
