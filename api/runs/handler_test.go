package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradedesk/routeopt/core/audit"
	"github.com/tradedesk/routeopt/core/model"
)

type memStore struct{ runs []*model.Outcome }

func (m *memStore) SaveOutcome(_ context.Context, o *model.Outcome) error {
	m.runs = append(m.runs, o)
	return nil
}

func (m *memStore) QueryOutcomes(_ context.Context, q audit.Query) ([]*model.Outcome, error) {
	var res []*model.Outcome
	for _, o := range m.runs {
		if q.ProductGroup != "" && o.ProductGroup != q.ProductGroup {
			continue
		}
		if !q.Start.IsZero() && o.FinishedAt.Before(q.Start) {
			continue
		}
		res = append(res, o)
		if q.Limit > 0 && len(res) == q.Limit {
			break
		}
	}
	return res, nil
}

func (m *memStore) GetOutcome(_ context.Context, runID string) (*model.Outcome, error) {
	for _, o := range m.runs {
		if o.RunID == runID {
			return o, nil
		}
	}
	return nil, audit.ErrNotFound
}

func seeded() *memStore {
	now := time.Now()
	return &memStore{runs: []*model.Outcome{
		{RunID: "run-1", ProductGroup: "nh3_domestic_barge", Reason: model.ReasonFirstRun, FinishedAt: now},
		{RunID: "run-2", ProductGroup: "uan_domestic", Reason: model.ReasonThreshold, FinishedAt: now},
	}}
}

func TestRunsHandler_AuthAndFilters(t *testing.T) {
	h := NewHandler(seeded(), "tok")

	req := httptest.NewRequest("GET", "/api/runs?product_group=nh3_domestic_barge", nil)
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
	var out []*model.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].RunID != "run-1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestRunsHandler_SingleRun(t *testing.T) {
	h := NewHandler(seeded(), "")

	req := httptest.NewRequest("GET", "/api/runs?run_id=run-2", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out model.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ProductGroup != "uan_domestic" {
		t.Fatalf("unexpected run: %+v", out)
	}

	req = httptest.NewRequest("GET", "/api/runs?run_id=nope", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRunsHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(seeded(), "")
	req := httptest.NewRequest("POST", "/api/runs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
