package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/tradedesk/routeopt/core/metrics"
	"github.com/tradedesk/routeopt/core/model"
)

func TestInfluxSink_RecordSolve(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	rec := coremetrics.SolveRecord{
		ProductGroup: "nh3_domestic_barge",
		Reason:       model.ReasonFirstRun,
		Status:       "optimal",
		Signal:       "strong_go",
		Profit:       5000.123456,
		UnitsUsed:    3,
		TriggerCount: 0,
		Duration:     1500 * time.Millisecond,
		At:           now,
	}
	if err := sink.RecordSolve(rec); err != nil {
		t.Fatalf("record error: %v", err)
	}

	p := write.NewPointWithMeasurement("solve_run").
		AddTag("product_group", "nh3_domestic_barge").
		AddTag("reason", "first_run").
		AddTag("status", "optimal").
		AddTag("signal", "strong_go").
		AddField("profit", 5000.123).
		AddField("units_used", 3).
		AddField("trigger_count", 0).
		AddField("duration_ms", int64(1500)).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body:\n got: %s\nwant: %s", body, expected)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	cfg := Config{
		InfluxURL:    srv.URL + "/api/v2/write",
		InfluxToken:  "tok",
		InfluxOrg:    "org",
		InfluxBucket: "bucket",
	}
	sink := NewInfluxSinkWithFallback(cfg)
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
