package livedata

import (
	"context"
	"testing"
	"time"

	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type fakeSub struct {
	topic   string
	qos     byte
	handler func(string, []byte)
}

func (f *fakeSub) Subscribe(topic string, qos byte, handler func(string, []byte)) error {
	f.topic = topic
	f.qos = qos
	f.handler = handler
	return nil
}

func newFeed(t *testing.T, intervals map[string]time.Duration) (*Feed, *fakeSub, <-chan model.Snapshot, *time.Time) {
	t.Helper()
	store := thresholds.NewStore(context.Background(), nil, nopLogger{})
	t.Cleanup(store.Close)
	store.Replace(thresholds.Config{
		ProductGroup:  "nh3_domestic_barge",
		Enabled:       true,
		PollIntervals: intervals,
	})

	bus := eventbus.NewTyped[model.Snapshot]()
	t.Cleanup(bus.Close)
	snaps := bus.Subscribe()

	f := New(bus, store, nopLogger{})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	sub := &fakeSub{}
	if err := f.Start(sub, Config{QoS: 1}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f, sub, snaps, &now
}

func recvSnap(t *testing.T, ch <-chan model.Snapshot) model.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	return model.Snapshot{}
}

func TestFeedPublishesSnapshot(t *testing.T) {
	_, sub, snaps, _ := newFeed(t, nil)

	if sub.topic != "routeopt/live/#" || sub.qos != 1 {
		t.Fatalf("unexpected subscription %q qos %d", sub.topic, sub.qos)
	}
	sub.handler("routeopt/live/markets/nh3_domestic_barge",
		[]byte(`{"values":{"nola_buy":300,"stl_sell":385},"at":1767258000000}`))

	got := recvSnap(t, snaps)
	if got.ProductGroup != "nh3_domestic_barge" || got.Source != "markets" {
		t.Errorf("bad routing: %+v", got)
	}
	if got.Values["stl_sell"] != 385 {
		t.Errorf("values lost: %v", got.Values)
	}
	if got.At.UnixMilli() != 1767258000000 {
		t.Errorf("feed timestamp not honored: %v", got.At)
	}
}

func TestFeedThrottlesFastSource(t *testing.T) {
	f, sub, snaps, now := newFeed(t, map[string]time.Duration{"markets": 5 * time.Minute})

	payload := []byte(`{"values":{"nola_buy":300}}`)
	sub.handler("routeopt/live/markets/nh3_domestic_barge", payload)
	recvSnap(t, snaps)

	// Second update inside the window is dropped.
	*now = now.Add(time.Minute)
	sub.handler("routeopt/live/markets/nh3_domestic_barge", payload)
	select {
	case <-snaps:
		t.Fatal("throttled update was published")
	case <-time.After(50 * time.Millisecond):
	}

	// Past the window it flows again.
	*now = now.Add(5 * time.Minute)
	sub.handler("routeopt/live/markets/nh3_domestic_barge", payload)
	recvSnap(t, snaps)

	// A different source carries its own clock.
	sub.handler("routeopt/live/usgs/nh3_domestic_barge", payload)
	recvSnap(t, snaps)
	_ = f
}

func TestFeedDropsMalformed(t *testing.T) {
	_, sub, snaps, _ := newFeed(t, nil)

	sub.handler("tooshort", []byte(`{"values":{"x":1}}`))
	sub.handler("routeopt/live/markets/nh3_domestic_barge", []byte(`not json`))
	sub.handler("routeopt/live/markets/nh3_domestic_barge", []byte(`{"values":{}}`))

	select {
	case s := <-snaps:
		t.Fatalf("unexpected snapshot %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedDefaultTimestamp(t *testing.T) {
	_, sub, snaps, now := newFeed(t, nil)

	sub.handler("routeopt/live/markets/nh3_domestic_barge", []byte(`{"values":{"nola_buy":1}}`))
	got := recvSnap(t, snaps)
	if !got.At.Equal(*now) {
		t.Errorf("expected ingest time %v, got %v", *now, got.At)
	}
}
