package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"regime-switcher/internal/container"
)

var (
	runTickers []string
	runOutDir  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for every ticker",
	Long: `Run the full pipeline for each configured ticker (or the ones given with
--ticker) and write <ticker>_report.json, <ticker>_backtest.csv and
<ticker>_attribution.csv into the output directory.

Examples:
  regimectl run --config configs/config.yaml
  regimectl run --ticker SPY --ticker QQQ --out /tmp/regimes`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runTickers, "ticker", nil, "只运行指定 ticker，可重复")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "输出目录，默认使用 output.dir")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(configPath)
	if err != nil {
		return err
	}
	if err := c.Build(); err != nil {
		return err
	}
	defer c.Stop()

	outcomes, err := c.RunAll(ctx, runTickers, runOutDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tROWS\tCAGR\tSHARPE\tSORTINO\tMAXDD\tVAR\tCVAR\tREPORT")
	for _, o := range outcomes {
		s, tail := o.Report.Stats, o.Report.Tail
		fmt.Fprintf(w, "%s\t%d\t%.2f%%\t%.2f\t%.2f\t%.2f%%\t%.4f\t%.4f\t%s\n",
			o.Ticker, len(o.Report.Rows), s.CAGR*100, s.Sharpe, s.Sortino, s.MaxDrawdown*100,
			tail.VaR, tail.CVaR, o.Files.JSON)
	}
	return w.Flush()
}
