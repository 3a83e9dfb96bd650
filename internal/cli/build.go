package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcrew"
	"github.com/hupe1980/agentcrew/build"
)

var buildFlags struct {
	coding      string
	out         string
	maxAgents   int
	temperature float64
}

var buildCmd = &cobra.Command{
	Use:   "build <task>",
	Short: "Plan a team for a task and save its config",
	Long: `Ask the planner model for a team of experts, start the endpoints the
team needs to verify it can be served, and save the resulting build config.
The config can be passed to "agentcrew start --load" to skip planning.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.coding, "coding", "auto", "add a code-executing user proxy (yes, no, auto)")
	buildCmd.Flags().StringVarP(&buildFlags.out, "out", "o", "", "config file to write (default save_config_<md5 of task>.json)")
	buildCmd.Flags().IntVar(&buildFlags.maxAgents, "max-agents", 5, "maximum number of planned experts")
	buildCmd.Flags().Float64Var(&buildFlags.temperature, "temperature", 0, "sampling temperature stored in the config")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.manager.Close()

	opts, err := buildOptions(buildFlags.coding, buildFlags.temperature)
	if err != nil {
		return err
	}

	planModel, err := a.plannerModel()
	if err != nil {
		return err
	}
	planner := build.NewModelPlanner(planModel, a.settings.AgentModel)
	planner.MaxAgents = buildFlags.maxAgents
	planner.Logger = a.logger

	crew := a.newCrew(planner, planModel)
	defer crew.Close()

	cfg, err := crew.Build(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	path, err := crew.Save(buildFlags.out)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, spec := range cfg.Roster() {
		fmt.Fprintf(w, "%-20s %-12s %s\n", spec.Name, spec.Kind, spec.Model)
	}
	fmt.Fprintf(w, "saved %s\n", path)
	return nil
}

func buildOptions(coding string, temperature float64) (agentcrew.BuildOptions, error) {
	opts := agentcrew.BuildOptions{
		DefaultLLMConfig: map[string]any{"temperature": temperature},
	}
	switch strings.ToLower(coding) {
	case "auto", "":
	case "yes", "true":
		v := true
		opts.Coding = &v
	case "no", "false":
		v := false
		opts.Coding = &v
	default:
		return opts, fmt.Errorf("invalid --coding %q: want yes, no or auto", coding)
	}
	return opts, nil
}
