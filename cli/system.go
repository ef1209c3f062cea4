package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/gridnav/config"
	"go.viam.com/gridnav/internal/pathplot"
	"go.viam.com/gridnav/internal/planlog"
	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/ros"
	"go.viam.com/gridnav/ros/rosbridge"
	"go.viam.com/gridnav/services/navigation"
)

// system is one running navigator: transform buffer, planning loop, ROS node and the optional
// attempt history and plot sinks.
type system struct {
	cfg        *config.Config
	logger     logging.Logger
	transforms *referenceframe.TransformBuffer
	navigator  *navigation.Navigator
	node       *ros.Node
	store      *planlog.Store
}

// newSystem wires a navigator to bridge. clk is the time transform ages are judged against: the
// wall clock when live, recorded time when replaying.
func newSystem(
	ctx context.Context,
	cfg *config.Config,
	bridge ros.Bridge,
	clk clock.Clock,
	logger logging.Logger,
) (*system, error) {
	s := &system{
		cfg:        cfg,
		logger:     logger,
		transforms: referenceframe.NewTransformBuffer(clk, cfg.Rosbridge.MaxTransformAge.Std()),
	}

	var recorder navigation.AttemptRecorder
	if cfg.PlanLog != "" {
		store, err := planlog.Open(ctx, cfg.PlanLog, logger.Sublogger("planlog"))
		if err != nil {
			return nil, err
		}
		s.store = store
		recorder = store
	}

	router := navigation.NewOutputRouter(cfg.Navigation.MapFrame, logger.Sublogger("output"))
	nav, err := navigation.NewNavigator(
		cfg.Navigation,
		s.transforms,
		motionplan.NewAStar(logger.Sublogger("astar")),
		router,
		recorder,
		logger.Sublogger("navigation"),
	)
	if err != nil {
		return nil, multierr.Combine(err, s.closeStore())
	}
	s.navigator = nav
	s.node = ros.NewNode(bridge, nav, s.transforms, cfg.Topics, logger.Sublogger("ros"))
	router.AddSink(s.node)

	if cfg.PlotDir != "" {
		renderer, err := pathplot.NewRenderer(cfg.PlotDir, nav.Tracker().Occupancy, logger.Sublogger("plot"))
		if err != nil {
			return nil, multierr.Combine(err, s.closeStore())
		}
		router.AddSink(renderer)
	}

	nav.Start()
	return s, nil
}

func (s *system) closeStore() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *system) Close(ctx context.Context) error {
	return multierr.Combine(s.navigator.Close(ctx), s.closeStore())
}

// loadConfig reads the configured file, or the defaults when none is given, and applies flag
// overrides and log settings.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, error) {
	logger := logging.NewLogger("navigator")

	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		read, err := config.Read(path, logger)
		if err != nil {
			return nil, nil, err
		}
		cfg = read
	} else {
		defaults := config.Default()
		cfg = &defaults
	}
	if planLog := c.String(flagPlanLog); planLog != "" {
		cfg.PlanLog = planLog
	}
	if plotDir := c.String(flagPlotDir); plotDir != "" {
		cfg.PlotDir = plotDir
	}

	if err := cfg.Log.Apply(logger); err != nil {
		return nil, nil, err
	}
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	return cfg, logger, nil
}

// printBridge stands in for rosbridge when replaying: outputs are written as JSON lines and
// nothing is subscribed.
type printBridge struct {
	mu  sync.Mutex
	out io.Writer
}

type printedMessage struct {
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

func (b *printBridge) Subscribe(ctx context.Context, topic, msgType string, handler rosbridge.Handler) error {
	return nil
}

func (b *printBridge) Advertise(ctx context.Context, topic, msgType string) error {
	return nil
}

func (b *printBridge) Publish(ctx context.Context, topic string, msg interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Wrap(json.NewEncoder(b.out).Encode(printedMessage{Topic: topic, Msg: msg}), "cannot print message")
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
