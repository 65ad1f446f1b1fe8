// Package watchdog periodically scans the bridge's live hub sessions for
// silence and device-availability flips, raising operational alarms over
// the message bus, adapted from the teacher's
// internal/pkg/application/watchdog package (the same "background poll
// loop publishing alarms through messaging.MsgContext" shape).
package watchdog

import (
	"context"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/alarm"
	"github.com/homed/cloud-bridge/internal/pkg/bridge"
)

// DefaultSilenceThreshold is how long a Ready session may go without a
// decryptable frame before it is considered silent. The wire protocol's own
// hard deadline (spec §5) only applies during Handshake/Authorization; a
// Ready session is allowed to be quiet, but the watchdog still wants to
// know about prolonged silence for operational visibility.
const DefaultSilenceThreshold = 5 * time.Minute

// DefaultInterval is how often the watchdog sweeps the session registry.
const DefaultInterval = 30 * time.Second

// Watchdog owns the background sweep goroutine.
type Watchdog struct {
	ctl       *bridge.Controller
	messenger messaging.MsgContext
	log       zerolog.Logger

	interval  time.Duration
	threshold time.Duration

	silent          map[string]bool
	deviceAvailable map[string]bool
}

// New builds a Watchdog with the default sweep interval and silence
// threshold. messenger may be nil, in which case alarms are logged but not
// published (useful for tests and for running without a message bus).
func New(ctl *bridge.Controller, messenger messaging.MsgContext, log zerolog.Logger) *Watchdog {
	return &Watchdog{
		ctl:             ctl,
		messenger:       messenger,
		log:             log,
		interval:        DefaultInterval,
		threshold:       DefaultSilenceThreshold,
		silent:          map[string]bool{},
		deviceAvailable: map[string]bool{},
	}
}

// Start runs the sweep loop until ctx is cancelled. It blocks the calling
// goroutine; callers run it on its own goroutine.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	now := time.Now()

	seen := map[string]bool{}
	for _, info := range w.ctl.AllSessions() {
		seen[info.UniqueID] = true
		w.checkSilence(ctx, info, now)
		w.checkDeviceAvailability(ctx, info)
	}

	for uniqueID := range w.silent {
		if !seen[uniqueID] {
			delete(w.silent, uniqueID)
		}
	}
}

func (w *Watchdog) checkSilence(ctx context.Context, info bridge.SessionInfo, now time.Time) {
	stale := now.Sub(info.Session.LastActivity()) > w.threshold
	wasSilent := w.silent[info.UniqueID]

	switch {
	case stale && !wasSilent:
		w.silent[info.UniqueID] = true
		w.publish(ctx, &alarm.HubSilent{UniqueID: info.UniqueID, Timestamp: now})
	case !stale && wasSilent:
		delete(w.silent, info.UniqueID)
		w.publish(ctx, &alarm.HubRecovered{UniqueID: info.UniqueID, Timestamp: now})
	}
}

func (w *Watchdog) checkDeviceAvailability(ctx context.Context, info bridge.SessionInfo) {
	for key, device := range info.Session.Devices() {
		trackingKey := info.UniqueID + "/" + key
		was, known := w.deviceAvailable[trackingKey]
		w.deviceAvailable[trackingKey] = device.Available

		if known && was && !device.Available {
			w.publish(ctx, &alarm.DeviceUnavailable{
				UniqueID:  info.UniqueID,
				DeviceKey: key,
				Timestamp: time.Now(),
			})
		}
	}
}

func (w *Watchdog) publish(ctx context.Context, msg interface {
	ContentType() string
	TopicName() string
	Body() []byte
}) {
	w.log.Info().Str("topic", msg.TopicName()).Msg("watchdog: alarm raised")

	if w.messenger == nil {
		return
	}
	if err := w.messenger.PublishOnTopic(ctx, msg); err != nil {
		w.log.Warn().Err(err).Str("topic", msg.TopicName()).Msg("watchdog: failed to publish alarm")
	}
}
