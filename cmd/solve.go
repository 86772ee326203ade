package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradedesk/routeopt/app"
	"github.com/tradedesk/routeopt/config"
	"github.com/tradedesk/routeopt/core/catalog"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/solver"
	"github.com/tradedesk/routeopt/core/thresholds"
	"github.com/tradedesk/routeopt/infra/engine"
	"github.com/tradedesk/routeopt/infra/logger"
)

var (
	solveGroup     string
	solveOverrides []string
	solveScenarios int
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run one optimization for a product group and print the result",
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveGroup, "group", "g", thresholds.NH3DomesticBarge, "product group")
	solveCmd.Flags().StringArrayVarP(&solveOverrides, "set", "s", nil, "override a variable, e.g. --set nola_buy=310")
	solveCmd.Flags().IntVar(&solveScenarios, "scenarios", -1, "Monte Carlo scenario count, 0 disables, -1 uses the group config")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topo, err := catalog.Topology(solveGroup)
	if err != nil {
		return err
	}

	db, closeStore, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	configs := thresholds.NewStore(ctx, db, logger.New("thresholds"))
	defer configs.Close()
	gc, ok := configs.Get(solveGroup)
	if !ok {
		return fmt.Errorf("no configuration for product group %s", solveGroup)
	}

	values, err := parseOverrides(solveOverrides)
	if err != nil {
		return err
	}

	scenarios := gc.Scenarios
	if solveScenarios >= 0 {
		scenarios = solveScenarios
	}
	mode := model.ModeMonteCarlo
	if scenarios == 0 {
		mode = model.ModeSingle
	}

	channel := engine.New(cfg.Engine, logger.New("engine"))
	defer channel.Close()
	runner := solver.New(channel, logger.New("solver"))

	idx := model.NewVariableIndex(topo)
	req := model.SolveRequest{
		Mode:        mode,
		Topology:    topo,
		Vector:      idx.Vector(values),
		Scenarios:   scenarios,
		Objective:   model.ParseObjectiveMode(cfg.Trigger.Objective),
		Lambda:      cfg.Trigger.Lambda,
		ProfitFloor: cfg.Trigger.ProfitFloor,
	}
	res, dist, err := runner.Run(ctx, req, gc.Cutoffs)
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}

	out := struct {
		ProductGroup string              `json:"product_group"`
		Result       *model.SolveResult  `json:"result"`
		Distribution *model.Distribution `json:"distribution,omitempty"`
	}{solveGroup, res, dist}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseOverrides(pairs []string) (map[string]float64, error) {
	values := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		key, raw, found := strings.Cut(p, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("override %q must be key=value", p)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", p, err)
		}
		values[key] = v
	}
	return values, nil
}
