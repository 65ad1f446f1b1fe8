package user

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// TelegramUpdate is the subset of a Telegram webhook payload the
// provisioning FSM needs, ported from original_source/controller.cpp's
// `/telegram` branch of Controller::requestReceived.
type TelegramUpdate struct {
	ChatID   int64
	ChatType string
	FromBot  bool
	Text     string
}

// Sender delivers a provisioning reply to a chat. The real collaborator is
// the Telegram Bot API (spec §1 lists it as out of scope); this interface
// lets the FSM stay decoupled from any concrete transport.
type Sender interface {
	Send(chatID int64, markdown string) error
}

// HandleTelegramUpdate drives the provisioning FSM for one inbound webhook
// message: /start, /renew, /remove, /confirm, /cancel, /getid. Credential
// creation and removal are persisted; the reply is handed to sender
// fire-and-forget (errors are logged, not retried, per spec §5/§9).
func (m *Manager) HandleTelegramUpdate(update TelegramUpdate, sender Sender, log zerolog.Logger) {
	if update.ChatType != "private" || update.FromBot {
		return
	}

	m.mu.Lock()
	u, exists := m.users[update.ChatID]
	m.mu.Unlock()

	var message string
	var provision, remove bool

	switch update.Text {
	case "/start":
		if exists {
			break
		}
		message = "Credentials created.\n\n"
		provision = true

	case "/renew":
		if exists {
			m.mu.Lock()
			u.BotStatus = BotRenew
			m.mu.Unlock()
			message = "Are you really want to get new credentials?\nSend /confirm or /cancel."
			break
		}
		message = "Credentials created.\n\n"
		provision = true

	case "/remove":
		if exists {
			m.mu.Lock()
			u.BotStatus = BotRemove
			m.mu.Unlock()
			message = "Are you really want to remove your credentials?\nSend /confirm or /cancel."
			break
		}
		message = "Credentials not found."

	case "/confirm":
		if !exists {
			break
		}
		switch u.BotStatus {
		case BotRenew:
			message = "Credentials updated.\n\n"
			provision = true
		case BotRemove:
			message = "Credentials successfully removed."
			remove = true
		}

	case "/cancel":
		if !exists || u.BotStatus == BotIdle {
			break
		}
		m.mu.Lock()
		u.BotStatus = BotIdle
		m.mu.Unlock()
		message = "Action cancelled."

	case "/getid":
		message = fmt.Sprintf("Your chat identifier:\n`%d`", update.ChatID)
	}

	switch {
	case provision:
		name, password, clientToken, err := m.provision(update.ChatID)
		if err != nil {
			log.Error().Err(err).Int64("chat", update.ChatID).Msg("user: failed to provision credentials")
			return
		}
		message += fmt.Sprintf("Username:\n`%s`\n\nPassword:\n`%s`\n\nClient token:\n`%s`", name, password, clientToken)

	case remove:
		m.mu.Lock()
		delete(m.users, update.ChatID)
		m.mu.Unlock()
		if err := m.db.DeleteUser(update.ChatID); err != nil {
			log.Error().Err(err).Int64("chat", update.ChatID).Msg("user: failed to delete user record")
		}
	}

	if message == "" || sender == nil {
		return
	}
	if err := sender.Send(update.ChatID, message); err != nil {
		log.Warn().Err(err).Int64("chat", update.ChatID).Msg("user: provisioning reply delivery failed")
	}
}

// LoggingSender is the stubbed Telegram Bot API collaborator: it logs the
// message that would have been sent instead of making the real outbound
// call, per SPEC_FULL §4.F (the Telegram bot itself is out of scope).
type LoggingSender struct {
	Log zerolog.Logger
}

func (s LoggingSender) Send(chatID int64, markdown string) error {
	s.Log.Info().Int64("chat", chatID).Str("message", markdown).Msg("user: telegram send (stubbed)")
	return nil
}

// provision creates or rotates a user's name/password/clientToken, clearing
// any access/refresh tokens, and persists the result. It returns the
// plaintext password and the hex-encoded client token for delivery to the
// chat. The password is kept only as its salted hash; the client token is
// kept on the User and persisted (hex-encoded) for hub authorization.
func (m *Manager) provision(chat int64) (name, password, clientTokenHex string, err error) {
	salt, err := randomBytes(16)
	if err != nil {
		return "", "", "", err
	}
	passwordBytes, err := randomBytes(8)
	if err != nil {
		return "", "", "", err
	}
	nameSuffix, err := randomBytes(5)
	if err != nil {
		return "", "", "", err
	}
	clientToken, err := randomBytes(32)
	if err != nil {
		return "", "", "", err
	}

	password = hex.EncodeToString(passwordBytes)
	name = "user_" + hex.EncodeToString(nameSuffix)

	sum := md5.Sum(append(append([]byte{}, salt...), password...))
	hash := hex.EncodeToString(salt) + hex.EncodeToString(sum[:])

	m.mu.Lock()
	u, exists := m.users[chat]
	if !exists {
		u = &User{Chat: chat}
		m.users[chat] = u
	}
	u.Name = name
	u.Hash = hash
	u.ClientToken = clientToken
	u.AccessToken = nil
	u.RefreshToken = nil
	u.TokenExpire = 0
	u.BotStatus = BotIdle
	record := u.toRecord()
	m.mu.Unlock()

	if err := m.db.SaveUser(record); err != nil {
		return "", "", "", fmt.Errorf("user: failed to persist provisioned credentials: %w", err)
	}

	return name, password, hex.EncodeToString(clientToken), nil
}
