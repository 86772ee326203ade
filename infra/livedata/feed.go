// Package livedata turns broker feed messages into market snapshots for
// the trigger loops. Each feed message carries the full current view of
// one source; the feed tags it with a timestamp and fans it out.
package livedata

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	corelogger "github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

// Subscriber is the transport side of the feed, satisfied by the MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Config selects the wildcard topic the feed listens on. The last two
// topic levels name the source and the product group, e.g.
// routeopt/live/markets/nh3_domestic_barge.
type Config struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// SetDefaults applies the conventional topic layout.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "routeopt/live/#"
	}
}

type message struct {
	Values map[string]float64 `json:"values"`
	At     int64              `json:"at,omitempty"`
}

// Feed subscribes to live market topics and publishes snapshots on a bus.
// Sources that update faster than the effective poll interval for their
// product groups are throttled at ingest.
type Feed struct {
	bus     *eventbus.TypedBus[model.Snapshot]
	configs *thresholds.Store
	log     corelogger.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// New builds a feed publishing on bus, throttled per the config store.
func New(bus *eventbus.TypedBus[model.Snapshot], configs *thresholds.Store, log corelogger.Logger) *Feed {
	return &Feed{
		bus:      bus,
		configs:  configs,
		log:      log,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Start attaches the feed to the transport.
func (f *Feed) Start(sub Subscriber, cfg Config) error {
	cfg.SetDefaults()
	return sub.Subscribe(cfg.Topic, cfg.QoS, f.handle)
}

func (f *Feed) handle(topic string, payload []byte) {
	source, group, err := parseTopic(topic)
	if err != nil {
		f.log.Warnf("livedata: %v", err)
		return
	}
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		f.log.Errorf("livedata: bad payload on %s: %v", topic, err)
		return
	}
	if len(msg.Values) == 0 {
		f.log.Warnf("livedata: empty values on %s", topic)
		return
	}
	if !f.admit(source) {
		f.log.Debugf("livedata: throttled %s update for %s", source, group)
		return
	}
	at := f.now()
	if msg.At > 0 {
		at = time.UnixMilli(msg.At)
	}
	f.bus.Publish(model.Snapshot{
		ProductGroup: group,
		Source:       source,
		Values:       msg.Values,
		At:           at,
	})
}

// admit applies the per-source poll interval. A source with no enabled
// interval passes unthrottled.
func (f *Feed) admit(source string) bool {
	interval, ok := f.configs.EffectivePollInterval(source)
	if !ok {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if last, seen := f.lastSeen[source]; seen && now.Sub(last) < interval {
		return false
	}
	f.lastSeen[source] = now
	return true
}

func parseTopic(topic string) (source, group string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("topic %q lacks source and product group levels", topic)
	}
	source = parts[len(parts)-2]
	group = parts[len(parts)-1]
	if source == "" || group == "" {
		return "", "", fmt.Errorf("topic %q has empty source or product group", topic)
	}
	return source, group, nil
}
