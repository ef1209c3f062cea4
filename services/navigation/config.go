package navigation

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/gridnav/utils"
)

const (
	defaultPlanResolution      = 0.25
	defaultPlanHorizon         = 15.
	defaultLookaheadIndex      = 3
	defaultInflationMultiplier = 2
	defaultOccupancyThreshold  = 0.5
	defaultPoseTimeout         = 100 * time.Millisecond
	defaultMapFrame            = "map"
	defaultBaseFrame           = "base_footprint"
)

// Config holds the tunables of the replanning loop.
type Config struct {
	// PlanResolution is the spacing of the planning lattice in meters.
	PlanResolution float64 `json:"plan_resolution" yaml:"plan_resolution"`
	// PlanHorizon is the half-width of the search window in meters.
	PlanHorizon float64 `json:"plan_horizon" yaml:"plan_horizon"`
	// LookaheadIndex selects which state of the path becomes the next waypoint.
	LookaheadIndex int `json:"lookahead_index" yaml:"lookahead_index"`
	// InflationMultiplier scales the plan/map resolution ratio into the inflation window.
	InflationMultiplier int     `json:"inflation_multiplier" yaml:"inflation_multiplier"`
	OccupancyThreshold  float64 `json:"occupancy_threshold" yaml:"occupancy_threshold"`

	PoseTimeout utils.Duration `json:"pose_timeout" yaml:"pose_timeout"`
	MapFrame    string         `json:"map_frame" yaml:"map_frame"`
	BaseFrame   string         `json:"base_frame" yaml:"base_frame"`

	// WindowCenteredOnAgent moves the search window from the world origin to the agent.
	WindowCenteredOnAgent bool `json:"window_centered_on_agent" yaml:"window_centered_on_agent"`
	// MapReplanDebounce coalesces bursts of map updates into one planning attempt. Zero disables it.
	MapReplanDebounce utils.Duration `json:"map_replan_debounce" yaml:"map_replan_debounce"`
}

// DefaultConfig returns the tunables the navigator runs with when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PlanResolution:      defaultPlanResolution,
		PlanHorizon:         defaultPlanHorizon,
		LookaheadIndex:      defaultLookaheadIndex,
		InflationMultiplier: defaultInflationMultiplier,
		OccupancyThreshold:  defaultOccupancyThreshold,
		PoseTimeout:         utils.Duration(defaultPoseTimeout),
		MapFrame:            defaultMapFrame,
		BaseFrame:           defaultBaseFrame,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.PlanResolution <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("plan_resolution must be positive"))
	}
	if cfg.PlanHorizon <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("plan_horizon must be positive"))
	}
	if cfg.LookaheadIndex < 1 {
		return goutils.NewConfigValidationError(path, errors.New("lookahead_index must be at least 1"))
	}
	if cfg.InflationMultiplier < 0 {
		return goutils.NewConfigValidationError(path, errors.New("inflation_multiplier cannot be negative"))
	}
	if cfg.OccupancyThreshold <= 0 || cfg.OccupancyThreshold > 1 {
		return goutils.NewConfigValidationError(path, errors.New("occupancy_threshold must be in (0, 1]"))
	}
	if cfg.PoseTimeout <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("pose_timeout must be positive"))
	}
	if cfg.MapReplanDebounce < 0 {
		return goutils.NewConfigValidationError(path, errors.New("map_replan_debounce cannot be negative"))
	}
	if cfg.MapFrame == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "map_frame")
	}
	if cfg.BaseFrame == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "base_frame")
	}
	return nil
}
