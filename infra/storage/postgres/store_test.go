package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk/routeopt/core/audit"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
)

// Integration tests run only against a real database, pointed at by
// RO_TEST_POSTGRES_DSN.
func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RO_TEST_POSTGRES_DSN not set")
	}
	s, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestConfigRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	pg := "itest_" + uuid.NewString()
	cfg := thresholds.Config{
		ProductGroup: pg,
		Enabled:      true,
		Thresholds:   map[string]float64{"nola_buy": 2.0},
		Cooldown:     30 * time.Minute,
		Scenarios:    1000,
	}
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	cfg.Thresholds["nola_buy"] = 4.0
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig update: %v", err)
	}

	all, err := s.LoadConfigs(ctx)
	if err != nil {
		t.Fatalf("LoadConfigs: %v", err)
	}
	var found *thresholds.Config
	for i := range all {
		if all[i].ProductGroup == pg {
			found = &all[i]
		}
	}
	if found == nil {
		t.Fatal("saved config not returned")
	}
	if found.Thresholds["nola_buy"] != 4.0 {
		t.Errorf("expected upserted threshold 4.0, got %v", found.Thresholds["nola_buy"])
	}
}

func TestOutcomeLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	pg := "itest_" + uuid.NewString()
	o := &model.Outcome{
		RunID:        uuid.NewString(),
		ProductGroup: pg,
		Reason:       model.ReasonManual,
		Result:       &model.SolveResult{Status: model.StatusOptimal, Profit: 5000},
		FinishedAt:   time.Now().UTC(),
	}
	if err := s.SaveOutcome(ctx, o); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
	// Duplicate run IDs are absorbed.
	if err := s.SaveOutcome(ctx, o); err != nil {
		t.Fatalf("SaveOutcome duplicate: %v", err)
	}

	got, err := s.QueryOutcomes(ctx, audit.Query{ProductGroup: pg})
	if err != nil {
		t.Fatalf("QueryOutcomes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 run, got %d", len(got))
	}

	one, err := s.GetOutcome(ctx, o.RunID)
	if err != nil {
		t.Fatalf("GetOutcome: %v", err)
	}
	if one.Result.Profit != 5000 {
		t.Errorf("unexpected record: %+v", one)
	}

	if _, err := s.GetOutcome(ctx, uuid.NewString()); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
