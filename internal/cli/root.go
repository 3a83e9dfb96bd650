// Package cli implements the agentcrew command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcrew"
	"github.com/hupe1980/agentcrew/artifact"
	"github.com/hupe1980/agentcrew/build"
	"github.com/hupe1980/agentcrew/code"
	"github.com/hupe1980/agentcrew/config"
	"github.com/hupe1980/agentcrew/endpoint"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agentcrew",
	Short: "Build and run task-specific agent teams",
	Long: `agentcrew plans a team of expert agents for a task, starts the model
endpoints the team needs and runs a group chat between them.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ./agentcrew.yaml or $HOME/.agentcrew/agentcrew.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// app bundles what every command needs.
type app struct {
	settings *config.Settings
	logger   logging.Logger
	configs  model.ConfigList
	manager  *endpoint.Manager
}

func newApp() (*app, error) {
	s, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		s.Log.Level = logLevel
	}

	a := &app{settings: s, logger: newLogger(s.Log)}

	a.configs, err = model.LoadConfigList(s.ConfigList)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		a.logger.Warn("no model config list, hosted models use environment credentials", "path", s.ConfigList)
	}

	a.manager = endpoint.NewManager(func(o *endpoint.Options) {
		o.Host = s.Host
		o.PortRangeStart = s.Ports.Start
		o.PortRangeEnd = s.Ports.End
		o.MaxPorts = s.Ports.Max
		o.BuildTimeout = s.BuildTimeout
		o.WorldSize = s.WorldSize
		o.MaxTokens = s.MaxTokens
		o.ConfigList = a.configs
		o.Logger = a.logger
		if s.Resilience.Enabled {
			o.Resilience = a.resilience
		}
	})
	return a, nil
}

func newLogger(s config.LogSettings) logging.Logger {
	level := logging.ParseLevel(s.Level)
	switch s.Format {
	case "json", "text":
		return logging.NewSlogLogger(level, s.Format, os.Stderr)
	default:
		return logging.NewConsoleLogger(level, os.Stderr)
	}
}

func (a *app) resilience(o *model.ResilientOptions) {
	r := a.settings.Resilience
	if r.MaxFailures > 0 {
		o.MaxFailures = r.MaxFailures
	}
	if r.OpenTimeout > 0 {
		o.OpenTimeout = r.OpenTimeout
	}
	o.RequestsPerSecond = r.RequestsPerSecond
}

// plannerModel creates the client that plans rosters and picks speakers.
func (a *app) plannerModel() (model.Model, error) {
	spec := endpoint.ModelSpec{Model: a.settings.PlannerModel}
	if entry, ok := a.configs.First(spec.Model); ok {
		spec.APIKey = entry.APIKey
		spec.BaseURL = entry.BaseURL
		spec.APIType = entry.APIType
	}
	m, err := endpoint.DefaultModelFactory(spec)
	if err != nil {
		return nil, fmt.Errorf("planner model: %w", err)
	}
	if a.settings.Resilience.Enabled {
		m = model.NewResilient(m, func(o *model.ResilientOptions) {
			o.Logger = a.logger
			a.resilience(o)
		})
	}
	return m, nil
}

func (a *app) newCrew(planner build.Planner, manager model.Model) *agentcrew.Crew {
	s := a.settings
	input, output := agentcrew.ConsoleIO()
	return agentcrew.New(func(o *agentcrew.Options) {
		o.Manager = a.manager
		o.Planner = planner
		o.ConfigDir = s.ConfigDir
		o.Store = artifact.NewFileStore(s.TranscriptDir)
		o.ManagerModel = manager
		o.Input = input
		o.Output = output
		o.Executor = code.NewLocalExecutor(func(o *code.LocalOptions) {
			o.WorkDir = s.WorkDir
			o.Logger = a.logger
		})
		o.HumanPatience = s.HumanPatience
		o.Logger = a.logger
	})
}
