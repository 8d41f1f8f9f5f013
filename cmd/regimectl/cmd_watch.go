package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"regime-switcher/config"
	"regime-switcher/internal/container"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve metrics and re-run whenever the config changes",
	Long: `Run the pipeline once, then keep serving /metrics and re-run every ticker
each time the config file is saved. Under systemd (Type=notify) the process
reports READY after the first run and a STATUS line after every run.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(configPath)
	if err != nil {
		return err
	}
	if err := c.Build(); err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		notify(daemon.SdNotifyStopping)
		c.Stop()
	}()

	log := c.Logger()
	runAll := func() {
		outcomes, err := c.RunAll(ctx, nil, "")
		if err != nil {
			log.LogError(err, map[string]interface{}{"action": "run_all"})
			notify(fmt.Sprintf("STATUS=last run failed: %v", err))
			return
		}
		notify(fmt.Sprintf("STATUS=%d tickers up to date", len(outcomes)))
	}

	runAll()
	notify(daemon.SdNotifyReady)

	w := config.Watcher{
		Path: configPath,
		OnError: func(err error) {
			c.Monitor().RecordConfigReload("error")
			log.LogError(err, map[string]interface{}{"action": "watch", "path": configPath})
		},
	}
	err = w.Start(ctx, func(cfg config.AppConfig) {
		if err := c.Reload(cfg); err != nil {
			return
		}
		runAll()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// notify 不在 systemd 下运行时 SdNotify 返回 false，忽略即可。
func notify(state string) {
	_, _ = daemon.SdNotify(false, state)
}
