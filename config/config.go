// Package config defines the navigator's process configuration.
package config

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/ros"
	"go.viam.com/gridnav/services/navigation"
	"go.viam.com/gridnav/utils"
)

const (
	defaultRosbridgeURL    = "ws://localhost:9090"
	defaultMaxTransformAge = time.Second
	defaultLogMaxSizeMB    = 10
	defaultLogMaxBackups   = 3
)

// Config is everything needed to run a navigator process.
type Config struct {
	ConfigFilePath string `json:"-" yaml:"-"`

	Navigation navigation.Config `json:"navigation" yaml:"navigation"`
	Rosbridge  Rosbridge         `json:"rosbridge" yaml:"rosbridge"`
	Topics     ros.Topics        `json:"topics" yaml:"topics"`
	Log        Log               `json:"log" yaml:"log"`

	// PlanLog is the sqlite file planning attempts are recorded in. Empty disables recording.
	PlanLog string `json:"planlog,omitempty" yaml:"planlog,omitempty"`
	// PlotDir receives a PNG per published plan. Empty disables plotting.
	PlotDir string `json:"plot_dir,omitempty" yaml:"plot_dir,omitempty"`
}

// Rosbridge configures the connection to the ROS graph.
type Rosbridge struct {
	URL string `json:"url" yaml:"url"`
	// MaxTransformAge bounds how old the newest non-static transform may be for a pose to count
	// as known. Zero disables the check.
	MaxTransformAge utils.Duration `json:"max_transform_age" yaml:"max_transform_age"`
}

// Log configures process logging.
type Log struct {
	Level      string `json:"level,omitempty" yaml:"level,omitempty"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// Default returns a config with every default filled in.
func Default() Config {
	return Config{
		Navigation: navigation.DefaultConfig(),
		Rosbridge: Rosbridge{
			URL:             defaultRosbridgeURL,
			MaxTransformAge: utils.Duration(defaultMaxTransformAge),
		},
		Topics: ros.DefaultTopics(),
		Log: Log{
			Level:      "info",
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Navigation.Validate("navigation"); err != nil {
		return err
	}
	if err := cfg.Rosbridge.Validate("rosbridge"); err != nil {
		return err
	}
	if cfg.Topics.Waypoint == "" {
		return goutils.NewConfigValidationFieldRequiredError("topics", "waypoint")
	}
	if cfg.Topics.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError("topics", "path")
	}
	return cfg.Log.Validate("log")
}

// Validate ensures all parts of the config are valid.
func (r *Rosbridge) Validate(path string) error {
	if r.URL == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "url")
	}
	if r.MaxTransformAge < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_transform_age cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (l *Log) Validate(path string) error {
	if _, err := logging.LevelFromString(l.Level); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_size_mb and max_backups cannot be negative"))
	}
	return nil
}

// Apply sets the logger's level and, when a file is configured, adds a rotating file appender.
func (l *Log) Apply(logger logging.Logger) error {
	level, err := logging.LevelFromString(l.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if l.File != "" {
		logger.AddAppender(logging.NewFileAppender(l.File, l.MaxSizeMB, l.MaxBackups))
	}
	return nil
}
