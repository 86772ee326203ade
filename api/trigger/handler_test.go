package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
	coretrigger "github.com/tradedesk/routeopt/core/trigger"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type fakeRunner struct{ delay time.Duration }

func (f *fakeRunner) Run(ctx context.Context, _ model.SolveRequest, _ model.SignalCutoffs) (*model.SolveResult, *model.Distribution, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return &model.SolveResult{Status: model.StatusOptimal, Profit: 100}, nil, nil
}

func startLoop(t *testing.T, delay time.Duration) *coretrigger.Loop {
	t.Helper()
	store := thresholds.NewStore(context.Background(), nil, nopLogger{})
	t.Cleanup(store.Close)
	topo := &model.Topology{
		ProductGroup: thresholds.NH3DomesticBarge,
		Variables:    []model.Variable{{Key: "nola_buy", Default: 300}},
	}
	results := eventbus.NewTyped[*model.Outcome]()
	t.Cleanup(results.Close)

	loop := coretrigger.New(topo, store, &fakeRunner{delay: delay}, results,
		nil, nil, nil, nopLogger{}, coretrigger.Options{FirstDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	snaps := make(chan model.Snapshot)
	go loop.Run(ctx, snaps)
	return loop
}

func TestTriggerHandler_StatusAndSolve(t *testing.T) {
	loop := startLoop(t, 10*time.Millisecond)
	h := NewHandler(map[string]*coretrigger.Loop{thresholds.NH3DomesticBarge: loop}, "tok")

	req := httptest.NewRequest("GET", "/api/trigger/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var statuses []coretrigger.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(statuses) != 1 || statuses[0].ProductGroup != thresholds.NH3DomesticBarge {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	req = httptest.NewRequest("POST", "/api/trigger/solve?product_group="+thresholds.NH3DomesticBarge, nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTriggerHandler_BusyAndUnknown(t *testing.T) {
	loop := startLoop(t, 500*time.Millisecond)
	h := NewHandler(map[string]*coretrigger.Loop{thresholds.NH3DomesticBarge: loop}, "")

	req := httptest.NewRequest("POST", "/api/trigger/solve?product_group="+thresholds.NH3DomesticBarge, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", rr.Code)
	}

	req = httptest.NewRequest("POST", "/api/trigger/solve?product_group=unknown", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
