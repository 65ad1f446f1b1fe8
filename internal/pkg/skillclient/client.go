// Package skillclient is the fire-and-forget outbound HTTP client that
// delivers discovery/state upcalls to the upstream voice-assistant skill
// (spec §4.G, §6), built the way the teacher's pkg/client package wraps an
// outbound call in oauth2 + otelhttp instrumentation.
package skillclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
)

var tracer = otel.Tracer("cloud-bridge/skillclient")

// Config is the `skill/` section of the INI configuration (spec §6): the
// upstream skill id and the static OAuth token presented on every callback.
type Config struct {
	SkillID string
	Token   string
	BaseURL string
}

// Client implements bridge.UpstreamNotifier. Every call is enqueued onto an
// internal worker so that a slow or down upstream never blocks a hub
// session's event handling (spec §5's fire-and-forget rule); failures are
// logged, not retried.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger

	queue chan func(context.Context)
	done  chan struct{}
}

var _ bridge.UpstreamNotifier = (*Client)(nil)

// New builds a Client. The OAuth token type is set to "OAuth" rather than
// the library's default "Bearer" so oauth2's transport emits the header
// shape spec §6 requires: "Authorization: OAuth <skillToken>".
func New(ctx context.Context, cfg Config, log zerolog.Logger) *Client {
	base := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	token := &oauth2.Token{AccessToken: cfg.Token, TokenType: "OAuth"}
	ts := oauth2.StaticTokenSource(token)

	c := &Client{
		cfg:        cfg,
		httpClient: oauth2.NewClient(oauthCtx, ts),
		log:        log,
		queue:      make(chan func(context.Context), 256),
		done:       make(chan struct{}),
	}

	go c.run()
	return c
}

func (c *Client) run() {
	for fn := range c.queue {
		fn(context.Background())
	}
	close(c.done)
}

// Close stops accepting new work and waits for the queue to drain.
func (c *Client) Close() {
	close(c.queue)
	<-c.done
}

func (c *Client) enqueue(fn func(context.Context)) {
	select {
	case c.queue <- fn:
	default:
		c.log.Warn().Msg("skillclient: callback queue full, dropping upcall")
	}
}

// NotifyDiscovery implements bridge.UpstreamNotifier: POST .../callback/discovery
// telling the skill that chat's device list has changed.
func (c *Client) NotifyDiscovery(ctx context.Context, chat int64) {
	c.enqueue(func(ctx context.Context) {
		body := map[string]any{"user_id": fmt.Sprintf("%d", chat)}
		c.post(ctx, "discovery", body)
	})
}

// NotifyState implements bridge.UpstreamNotifier: POST .../callback/state
// with the capability/property delta for one endpoint.
func (c *Client) NotifyState(ctx context.Context, chat int64, endpointID string, delta map[string]any) {
	c.enqueue(func(ctx context.Context) {
		body := map[string]any{
			"user_id": fmt.Sprintf("%d", chat),
			"devices": []any{
				mergeID(endpointID, delta),
			},
		}
		c.post(ctx, "state", body)
	})
}

func mergeID(id string, delta map[string]any) map[string]any {
	out := map[string]any{"id": id}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func (c *Client) post(ctx context.Context, kind string, payload map[string]any) {
	var err error
	ctx, span := tracer.Start(ctx, "callback-"+kind)
	defer span.End()

	envelope := map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"payload": payload,
	}

	buf, err := json.Marshal(envelope)
	if err != nil {
		c.log.Error().Err(err).Msg("skillclient: failed to marshal callback body")
		return
	}

	url := c.cfg.BaseURL + "/skills/" + c.cfg.SkillID + "/callback/" + kind

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		c.log.Error().Err(err).Msg("skillclient: failed to build callback request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("skillclient: callback delivery failed")
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn().Str("kind", kind).Int("status", resp.StatusCode).Msg("skillclient: callback rejected")
	}
}
