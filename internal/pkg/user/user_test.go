package user

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/crypto"
	"github.com/homed/cloud-bridge/internal/pkg/persistence"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type fakeStore struct {
	rows map[int64]persistence.UserRecord
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[int64]persistence.UserRecord{}} }

func (f *fakeStore) LoadUsers() ([]persistence.UserRecord, error) {
	out := make([]persistence.UserRecord, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) SaveUser(u persistence.UserRecord) error {
	f.rows[u.Chat] = u
	return nil
}

func (f *fakeStore) DeleteUser(chat int64) error {
	delete(f.rows, chat)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	global, err := crypto.NewGlobalCipher([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	store := newFakeStore()
	m, err := New(store, global, "client-id")
	if err != nil {
		t.Fatal(err)
	}
	return m, store
}

func TestAuthorizationCodeExchangeIsOneShot(t *testing.T) {
	is := is.New(t)

	m, store := newTestManager(t)
	sender := &fakeSender{}
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 1, ChatType: "private", Text: "/start"}, sender, noopLogger())
	u, ok := m.FindByChat(1)
	is.True(ok)
	is.True(store.rows[1].ClientToken != "")

	code, err := m.IssueAuthorizationCode(u)
	is.NoErr(err)

	pair, err := m.ExchangeCode("client-id", code)
	is.NoErr(err)
	is.True(pair.AccessToken != "")
	is.True(pair.RefreshToken != "")

	// replaying the same code must fail: it is single-use.
	_, err = m.ExchangeCode("client-id", code)
	is.Equal(err, ErrBadGrant)
}

func TestExchangeCodeRejectsShortDecryptedCode(t *testing.T) {
	is := is.New(t)

	m, _ := newTestManager(t)

	// a well-formed, correctly-encrypted code that is nonetheless too short
	// once decrypted (16 plaintext bytes, not the 32-byte code key) must be
	// rejected with ErrBadGrant rather than slicing out of range.
	short := m.global.Encrypt([]byte("0123456789abcdef"))
	_, err := m.ExchangeCode("client-id", hex.EncodeToString(short))
	is.Equal(err, ErrBadGrant)
}

func TestExpiredAuthorizationCodeIsSwept(t *testing.T) {
	is := is.New(t)

	m, _ := newTestManager(t)
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 2, ChatType: "private", Text: "/start"}, nil, noopLogger())
	u, _ := m.FindByChat(2)

	code, err := m.IssueAuthorizationCode(u)
	is.NoErr(err)

	// force expiry and sweep
	key := hexKeyOf(t, m, code)
	m.mu.Lock()
	entry := m.codes[key]
	entry.expires = time.Now().Add(-time.Second)
	m.codes[key] = entry
	m.mu.Unlock()

	m.SweepExpiredCodes()

	_, err = m.ExchangeCode("client-id", code)
	is.Equal(err, ErrBadGrant)
}

func TestRefreshRotatesAndInvalidatesPreviousAccessToken(t *testing.T) {
	is := is.New(t)

	m, _ := newTestManager(t)
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 3, ChatType: "private", Text: "/start"}, nil, noopLogger())
	u, _ := m.FindByChat(3)

	code, err := m.IssueAuthorizationCode(u)
	is.NoErr(err)
	first, err := m.ExchangeCode("client-id", code)
	is.NoErr(err)

	_, ok := m.FindByBearer(first.AccessToken)
	is.True(ok)

	second, err := m.ExchangeRefresh("client-id", first.RefreshToken)
	is.NoErr(err)
	is.True(second.AccessToken != first.AccessToken)

	_, ok = m.FindByBearer(first.AccessToken)
	is.Equal(ok, false)

	_, ok = m.FindByBearer(second.AccessToken)
	is.True(ok)
}

func TestUnlinkClearsTokensWithoutDeletingUser(t *testing.T) {
	is := is.New(t)

	m, _ := newTestManager(t)
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 4, ChatType: "private", Text: "/start"}, nil, noopLogger())
	u, _ := m.FindByChat(4)

	code, _ := m.IssueAuthorizationCode(u)
	pair, err := m.ExchangeCode("client-id", code)
	is.NoErr(err)

	is.NoErr(m.Unlink(u))

	_, ok := m.FindByBearer(pair.AccessToken)
	is.Equal(ok, false)

	_, ok = m.FindByChat(4)
	is.True(ok)
}

func TestRemoveProvisioningFlowDeletesUser(t *testing.T) {
	is := is.New(t)

	m, store := newTestManager(t)
	sender := &fakeSender{}
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 5, ChatType: "private", Text: "/start"}, sender, noopLogger())
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 5, ChatType: "private", Text: "/remove"}, sender, noopLogger())
	m.HandleTelegramUpdate(TelegramUpdate{ChatID: 5, ChatType: "private", Text: "/confirm"}, sender, noopLogger())

	_, ok := m.FindByChat(5)
	is.Equal(ok, false)
	_, ok = store.rows[5]
	is.Equal(ok, false)
}

type fakeSender struct{ messages []string }

func (f *fakeSender) Send(chatID int64, markdown string) error {
	f.messages = append(f.messages, markdown)
	return nil
}

func hexKeyOf(t *testing.T, m *Manager, encryptedCode string) string {
	t.Helper()
	raw, err := hex.DecodeString(encryptedCode)
	if err != nil {
		t.Fatal(err)
	}
	code, err := m.global.Decrypt(raw)
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(code[:32])
}
