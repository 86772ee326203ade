// Package solver turns domain solve requests into framed engine exchanges:
// it encodes the topology descriptor, dispatches through the subprocess
// channel and decodes the raw response bytes into typed results.
package solver

import (
	"context"
	"fmt"

	"github.com/tradedesk/routeopt/core/codec"
	"github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/model"
)

// Channel is the raw engine transport, implemented by infra/engine.Channel.
// Both calls block the caller up to the channel's fixed timeout.
type Channel interface {
	Solve(ctx context.Context, descriptor []byte, vector []float64) ([]byte, error)
	MonteCarlo(ctx context.Context, descriptor []byte, vector []float64, scenarios int) ([]byte, error)
}

// Service runs solves for one product group topology.
type Service struct {
	ch  Channel
	log logger.Logger
}

// New creates a Service on top of the given channel.
func New(ch Channel, log logger.Logger) *Service {
	return &Service{ch: ch, log: log}
}

// Run executes a deterministic solve and, when the request asks for
// scenarios and the base solve is optimal, a Monte Carlo run on the same
// descriptor. Decode failures surface as error-status results, never panics;
// transport failures return the channel's typed errors.
func (s *Service) Run(ctx context.Context, req model.SolveRequest, cutoffs model.SignalCutoffs) (*model.SolveResult, *model.Distribution, error) {
	desc, err := codec.Encode(req.Topology, req.Objective, req.Lambda, req.ProfitFloor)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", req.Topology.ProductGroup, err)
	}
	vec := req.Vector
	if len(vec) != len(req.Topology.Variables) {
		// Short vectors are padded from defaults so the wire invariant
		// len(vector) == n_vars always holds.
		idx := model.NewVariableIndex(req.Topology)
		padded := idx.Vector(nil)
		copy(padded, vec)
		vec = padded
	}

	raw, err := s.ch.Solve(ctx, desc, vec)
	if err != nil {
		return nil, nil, err
	}
	res := codec.DecodeSingle(raw, req.Topology)

	if req.Scenarios <= 0 || res.Status != model.StatusOptimal {
		return res, nil, nil
	}

	rawMC, err := s.ch.MonteCarlo(ctx, desc, vec, req.Scenarios)
	if err != nil {
		// The deterministic result is still usable; report the distribution
		// failure to the caller through the log and return what we have.
		s.log.Warnf("monte carlo run failed for %s: %v", req.Topology.ProductGroup, err)
		return res, nil, nil
	}
	dist := codec.DecodeDistribution(rawMC, req.Topology, cutoffs)
	return res, dist, nil
}
