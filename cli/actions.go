package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/gridnav/internal/planlog"
	"go.viam.com/gridnav/ros"
	"go.viam.com/gridnav/ros/rosbridge"
)

// RunAction connects to rosbridge and navigates until interrupted or the connection drops.
func RunAction(c *cli.Context) (err error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	if url := c.String(flagURL); url != "" {
		cfg.Rosbridge.URL = url
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rosbridge.Dial(ctx, cfg.Rosbridge.URL, logger.Sublogger("rosbridge"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, client.Close())
	}()

	sys, err := newSystem(ctx, cfg, client, clock.New(), logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sys.Close(c.Context))
	}()

	if err := sys.node.Bind(ctx); err != nil {
		return err
	}
	logger.Infow("navigating", "rosbridge", cfg.Rosbridge.URL, "goal_topic", cfg.Topics.Goal,
		"waypoint_topic", cfg.Topics.Waypoint)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case <-client.Done():
		return errors.Errorf("lost connection to rosbridge at %s", cfg.Rosbridge.URL)
	}
}

// ReplayAction feeds a recorded bag through the navigator and prints everything it publishes.
func ReplayAction(c *cli.Context) (err error) {
	if c.Args().Len() != 1 {
		return errors.New("replay needs exactly one bag file")
	}
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rb, err := ros.ReadBag(c.Args().First())
	if err != nil {
		return err
	}
	msgs, err := ros.BagMessages(rb, cfg.Topics.Inputs())
	if err != nil {
		return err
	}

	recorded := clock.NewMock()
	sys, err := newSystem(ctx, cfg, &printBridge{out: writerOrStdout(c.App.Writer)}, recorded, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sys.Close(c.Context))
	}()

	delivered, err := replay(ctx, sys, msgs, c.Float64(flagRate), recorded)
	if err != nil {
		return err
	}
	if err := sys.navigator.Sync(ctx); err != nil {
		return err
	}
	logger.Infow("replay finished", "recorded", len(msgs), "delivered", delivered)
	return nil
}

// replay delivers msgs in recorded order. Each message waits for the navigator to finish with
// the ones before it and is stamped with its recorded time, so pose lookups see the transforms
// that were current when each map and goal was recorded.
func replay(ctx context.Context, sys *system, msgs []ros.BagMessage, rate float64, recorded *clock.Mock) (int, error) {
	replayer := ros.Replayer{
		Rate:     rate,
		SimClock: recorded,
		Settle:   sys.navigator.Sync,
		Logger:   sys.logger,
	}
	return replayer.Replay(ctx, msgs, sys.node.Handler)
}

// HistoryAction prints a summary of recorded planning attempts and the most recent ones.
func HistoryAction(c *cli.Context) (err error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.PlanLog == "" {
		return errors.New("no planlog configured, pass --planlog or set planlog in the config")
	}
	if _, err := os.Stat(cfg.PlanLog); err != nil {
		return errors.Wrapf(err, "cannot read planlog")
	}

	store, err := planlog.Open(c.Context, cfg.PlanLog, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()

	summary, err := store.Summarize(c.Context)
	if err != nil {
		return err
	}
	recent, err := store.Recent(c.Context, c.Int(flagLimit))
	if err != nil {
		return err
	}

	out := writerOrStdout(c.App.Writer)
	fmt.Fprintf(out, "attempts: %d\n", summary.Attempts)
	outcomes := lo.Keys(summary.ByOutcome)
	slices.Sort(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(out, "  %-10s %d\n", outcome, summary.ByOutcome[outcome])
	}
	if summary.MaxDuration > 0 {
		fmt.Fprintf(out, "search time: mean %v, median %v, p95 %v, max %v\n",
			summary.MeanDuration, summary.MedianDuration, summary.P95Duration, summary.MaxDuration)
	}
	if len(recent) == 0 {
		return nil
	}
	fmt.Fprintf(out, "recent:\n%s\n", recentTable(recent))
	return nil
}

func recentTable(recent []planlog.Record) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Started", "Outcome", "Trigger", "Search", "States", "Waypoint", "Error"})
	for _, rec := range recent {
		waypoint := ""
		if rec.Waypoint != nil {
			waypoint = rec.Waypoint.String()
		}
		t.AppendRow(table.Row{
			rec.Started.UTC().Format("2006-01-02T15:04:05.000Z"),
			rec.Outcome,
			rec.Trigger,
			rec.Duration,
			rec.PathLength,
			waypoint,
			rec.Error,
		})
	}
	return t.Render()
}
