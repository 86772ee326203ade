// Package audit defines durable persistence of solve outcomes and their
// trigger causes. Implementations live in infra/storage.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/tradedesk/routeopt/core/model"
)

// ErrNotFound is returned when a queried run does not exist.
var ErrNotFound = errors.New("audit: run not found")

// Query filters stored outcomes. Zero-value fields are unconstrained.
type Query struct {
	ProductGroup string
	Start        time.Time
	End          time.Time
	Limit        int
}

// Store persists outcomes for the audit trail. SaveOutcome is always called
// asynchronously by the trigger loop; a failure never rolls back the
// accepted solve.
type Store interface {
	SaveOutcome(ctx context.Context, o *model.Outcome) error
	QueryOutcomes(ctx context.Context, q Query) ([]*model.Outcome, error)
	GetOutcome(ctx context.Context, runID string) (*model.Outcome, error)
}
