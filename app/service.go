// Package app wires the configuration into a running service: engine
// channel, solver, per-group trigger loops, live data feed, durable
// stores, publishers and metrics.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apiruns "github.com/tradedesk/routeopt/api/runs"
	apithresholds "github.com/tradedesk/routeopt/api/thresholds"
	apitrigger "github.com/tradedesk/routeopt/api/trigger"
	"github.com/tradedesk/routeopt/config"
	"github.com/tradedesk/routeopt/core/audit"
	"github.com/tradedesk/routeopt/core/catalog"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/solver"
	"github.com/tradedesk/routeopt/core/thresholds"
	"github.com/tradedesk/routeopt/core/trigger"
	"github.com/tradedesk/routeopt/infra/engine"
	"github.com/tradedesk/routeopt/infra/livedata"
	"github.com/tradedesk/routeopt/infra/logger"
	"github.com/tradedesk/routeopt/infra/metrics"
	"github.com/tradedesk/routeopt/infra/mqtt"
	"github.com/tradedesk/routeopt/infra/storage/postgres"
	"github.com/tradedesk/routeopt/infra/storage/sqlite"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

// Store is the durable backend shared by the config store and the audit
// trail. Both storage implementations satisfy it.
type Store interface {
	thresholds.Persistence
	audit.Store
}

// Service orchestrates the trigger loops and their infrastructure.
type Service struct {
	Loops   map[string]*trigger.Loop
	Configs *thresholds.Store
	Audit   Store

	cfg        *config.Config
	channel    *engine.Channel
	client     *mqtt.Client
	feed       *livedata.Feed
	results    *eventbus.TypedBus[*model.Outcome]
	snapshots  *eventbus.TypedBus[model.Snapshot]
	publisher  *mqtt.ResultsPublisher
	log        logger.Logger
	closeStore func() error
}

// OpenStore builds the durable store selected by cfg.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (Store, func() error, error) {
	switch cfg.Backend {
	case "postgres":
		st, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, func() error { st.Close(); return nil }, nil
	default:
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return st, st.Close, nil
	}
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	db, closeStore, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	configs := thresholds.NewStore(ctx, db, logger.New("thresholds"))

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	sink, err := metrics.NewSink(cfg.Metrics, logg)
	if err != nil {
		client.Disconnect()
		_ = closeStore()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	channel := engine.New(cfg.Engine, logger.New("engine"))
	runner := solver.New(channel, logger.New("solver"))

	results := eventbus.NewTyped[*model.Outcome]()
	snapshots := eventbus.NewTyped[model.Snapshot]()
	narrative := mqtt.NewNarrativeRequester(client)

	svc := &Service{
		Loops:      make(map[string]*trigger.Loop),
		Configs:    configs,
		Audit:      db,
		cfg:        cfg,
		channel:    channel,
		client:     client,
		feed:       livedata.New(snapshots, configs, logger.New("livedata")),
		results:    results,
		snapshots:  snapshots,
		publisher:  mqtt.NewResultsPublisher(client),
		log:        logg,
		closeStore: closeStore,
	}

	opts := cfg.Trigger.Options()
	for _, gc := range configs.All() {
		if !gc.Enabled {
			continue
		}
		topo, err := catalog.Topology(gc.ProductGroup)
		if err != nil {
			logg.Warnf("product group %s enabled but has no topology: %v", gc.ProductGroup, err)
			continue
		}
		svc.Loops[gc.ProductGroup] = trigger.New(topo, configs, runner, results,
			db, narrative, sink, logger.New("trigger-"+gc.ProductGroup), opts)
	}
	if len(svc.Loops) == 0 {
		logg.Warnf("no product group is enabled, service will idle")
	}
	return svc, nil
}

// Run starts the loops and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PromEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PromAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if err := s.feed.Start(s.client, s.cfg.LiveData); err != nil {
		return fmt.Errorf("live data subscribe: %w", err)
	}

	go s.forwardResults(ctx)
	go s.watchConfigChanges(ctx)

	for pg, loop := range s.Loops {
		sub := s.snapshots.Subscribe()
		go loop.Run(ctx, sub)
		s.log.Infof("trigger loop started for %s", pg)
	}

	if s.cfg.API.Enabled {
		go func() {
			if err := s.serveAPI(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

// serveAPI runs the admin HTTP API until the context is canceled.
func (s *Service) serveAPI(ctx context.Context) error {
	token := s.cfg.API.Token
	mux := http.NewServeMux()
	mux.Handle("/api/runs", apiruns.NewHandler(s.Audit, token))
	mux.Handle("/api/thresholds", apithresholds.NewHandler(s.Configs, token))
	mux.Handle("/api/thresholds/", apithresholds.NewHandler(s.Configs, token))
	mux.Handle("/api/trigger/", apitrigger.NewHandler(s.Loops, token))
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// watchConfigChanges surfaces every applied threshold update in the log so
// operators can correlate trigger behavior with API edits.
func (s *Service) watchConfigChanges(ctx context.Context) {
	sub := s.Configs.Changes()
	defer s.Configs.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			s.log.Debugw("threshold config updated", map[string]any{
				"product_group": cfg.ProductGroup,
				"enabled":       cfg.Enabled,
				"cooldown":      cfg.Cooldown.String(),
				"scenarios":     cfg.Scenarios,
			})
		}
	}
}

// forwardResults pushes every published outcome to the broker.
func (s *Service) forwardResults(ctx context.Context) {
	sub := s.results.Subscribe()
	defer s.results.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-sub:
			if !ok {
				return
			}
			if err := s.publisher.Publish(ctx, o); err != nil {
				s.log.Errorf("result publish for run %s: %v", o.RunID, err)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.snapshots.Close()
	s.results.Close()
	s.Configs.Close()
	s.channel.Close()
	s.client.Disconnect()
	return s.closeStore()
}
