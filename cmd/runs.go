package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradedesk/routeopt/app"
	"github.com/tradedesk/routeopt/config"
	"github.com/tradedesk/routeopt/core/audit"
)

var (
	runsGroup string
	runsSince time.Duration
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Solve run history",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent solve runs",
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one solve run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsLsCmd.Flags().StringVarP(&runsGroup, "group", "g", "", "filter by product group")
	runsLsCmd.Flags().DurationVar(&runsSince, "since", 24*time.Hour, "look-back window")
	runsLsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum rows")
	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func openAudit(ctx context.Context) (app.Store, func() error, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return app.OpenStore(ctx, cfg.Storage)
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeStore, err := openAudit(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	outcomes, err := db.QueryOutcomes(ctx, audit.Query{
		ProductGroup: runsGroup,
		Start:        time.Now().Add(-runsSince),
		Limit:        runsLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tGROUP\tREASON\tSTATUS\tSIGNAL\tPROFIT\tFINISHED")
	for _, o := range outcomes {
		status, signal := "transport_error", ""
		var profit float64
		if o.Result != nil {
			status = o.Result.Status.String()
			profit = o.Result.Profit
		}
		if o.Distribution != nil {
			signal = o.Distribution.Signal.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f\t%s\n",
			o.RunID, o.ProductGroup, o.Reason, status, signal, profit,
			o.FinishedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeStore, err := openAudit(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	o, err := db.GetOutcome(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
