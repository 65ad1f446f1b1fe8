// Package config loads the bridge's INI configuration file (spec §6):
// server/http listener addresses, the OAuth client credentials, the
// upstream skill endpoint, the Telegram bot token, and the RRD sidecar
// address. Shape follows the teacher's LoadConfiguration: read the file,
// unmarshal into a typed struct, fall back to defaults for anything unset.
package config

import (
	"io"
	"time"

	"github.com/go-ini/ini"
)

const (
	// AuthorizationTimeout is the hard deadline from accept to a hub
	// completing handshake+authorization (spec §5, §6).
	AuthorizationTimeout = 10 * time.Second
	// CodeTTL is how long an authorization code remains exchangeable
	// (spec §6).
	CodeTTL = 60 * time.Second
	// AccessTokenTTL is the access/refresh token lifetime, 100 days
	// (spec §6).
	AccessTokenTTL = 8_640_000 * time.Second
)

// Server is the `server/` section: the hub TCP listener.
type Server struct {
	Address string
}

// HTTP is the `http/` section: the voice-assistant-facing HTTP listener.
type HTTP struct {
	Address string
}

// Client is the `client/` section: this service's own OAuth app
// credentials, used to validate the authorization code / token grants.
type Client struct {
	ID     string
	Secret string
}

// Skill is the `skill/` section: the upstream skill's id and static OAuth
// token, and the base URL the discovery/state callbacks are POSTed to.
type Skill struct {
	ID      string
	Token   string
	BaseURL string
}

// Bot is the `bot/` section: the Telegram bot token. It is parsed but not
// read anywhere else; outbound Telegram messages are stubbed by
// user.LoggingSender.
type Bot struct {
	Token string
}

// RRD is the `rrd/` section: address of the statistics sidecar. The sidecar
// itself is out of scope (spec.md §1 Non-goals); only its address is
// carried so a future writer has somewhere to point.
type RRD struct {
	Address string
}

// Config is the fully parsed INI file.
type Config struct {
	Server Server
	HTTP   HTTP
	Client Client
	Skill  Skill
	Bot    Bot
	RRD    RRD
}

func defaults() Config {
	return Config{
		Server: Server{Address: ":8042"},
		HTTP:   HTTP{Address: ":8084"},
	}
}

// Load reads an INI document from r and overlays it onto the defaults;
// sections or keys absent from r simply keep their default value.
func Load(r io.Reader) (*Config, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := defaults()

	file, err := ini.Load(buf)
	if err != nil {
		return nil, err
	}

	if s := file.Section("server"); s != nil {
		cfg.Server.Address = s.Key("address").MustString(cfg.Server.Address)
	}
	if s := file.Section("http"); s != nil {
		cfg.HTTP.Address = s.Key("address").MustString(cfg.HTTP.Address)
	}
	if s := file.Section("client"); s != nil {
		cfg.Client.ID = s.Key("id").String()
		cfg.Client.Secret = s.Key("secret").String()
	}
	if s := file.Section("skill"); s != nil {
		cfg.Skill.ID = s.Key("id").String()
		cfg.Skill.Token = s.Key("token").String()
		cfg.Skill.BaseURL = s.Key("url").String()
	}
	if s := file.Section("bot"); s != nil {
		cfg.Bot.Token = s.Key("token").String()
	}
	if s := file.Section("rrd"); s != nil {
		cfg.RRD.Address = s.Key("address").String()
	}

	return &cfg, nil
}
