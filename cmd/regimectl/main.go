package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "regimectl",
	Short: "Regime-switching research pipeline",
	Long: `regimectl fits a Gaussian hidden-state model to daily bars, labels each
period as trend, chop or risk_off, routes a trend or mean-reversion playbook by
label and backtests the result with costs, VaR/CVaR and per-regime attribution.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "regimectl", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
