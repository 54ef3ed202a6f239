// Command market-snapshot fetches the market listing once and prints the
// campaign report to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brandon/adex-market-monitor/internal/config"
	"github.com/brandon/adex-market-monitor/internal/market"
	"github.com/brandon/adex-market-monitor/internal/state"
	"github.com/brandon/adex-market-monitor/internal/view"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to optional YAML config")
	sortName := flag.String("sort", "deposit", "sort mode: deposit or status")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if err := run(cfg, *sortName, logger); err != nil {
		logger.WithError(err).Error("Snapshot failed")
		os.Exit(1)
	}
}

// run drives the same state machine as the service for a single refresh.
func run(cfg *config.Config, sortName string, logger *logrus.Logger) error {
	model := state.NewModel()
	now := time.Now()
	if _, outcome := state.Update(&model, state.SortModeChanged{Name: sortName}, now); outcome != state.Applied {
		return fmt.Errorf("unknown sort mode %q", sortName)
	}

	cmd, _ := state.Update(&model, state.RequestRefresh{}, now)
	fetch, ok := cmd.(state.FetchCmd)
	if !ok {
		return fmt.Errorf("refresh produced no fetch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout())
	defer cancel()

	client := market.NewClient(cfg.MarketURL, cfg.FetchTimeout(), logger)
	channels, err := client.FetchChannels(ctx)
	if err != nil {
		return err
	}
	state.Update(&model, state.RefreshSucceeded{Seq: fetch.Seq, Channels: channels}, time.Now())

	return view.WriteTable(os.Stdout, model, cfg.TargetAsset)
}
