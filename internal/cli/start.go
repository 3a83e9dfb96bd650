package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcrew"
	"github.com/hupe1980/agentcrew/build"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/groupchat"
)

var startFlags struct {
	load       string
	maxRound   int
	retries    int
	transcript string
	roundRobin bool
}

var startCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Run a group chat over a team",
	Long: `Run a group chat for a task. With --load the team is restored from a
saved build config; otherwise it is planned first, exactly like "build".`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVarP(&startFlags.load, "load", "l", "", "saved build config to restore")
	startCmd.Flags().IntVar(&startFlags.maxRound, "max-round", 0, "maximum number of turns (default from settings)")
	startCmd.Flags().IntVar(&startFlags.retries, "retries", 1, "attempts per turn, each with a fresh seed")
	startCmd.Flags().StringVar(&startFlags.transcript, "transcript", "chat", "transcript name inside the transcript dir")
	startCmd.Flags().BoolVar(&startFlags.roundRobin, "round-robin", false, "pick speakers in roster order instead of asking the manager")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.manager.Close()

	planModel, err := a.plannerModel()
	if err != nil {
		return err
	}
	planner := build.NewModelPlanner(planModel, a.settings.AgentModel)
	planner.Logger = a.logger

	manager := planModel
	if startFlags.roundRobin {
		manager = nil
	}
	crew := a.newCrew(planner, manager)
	defer crew.Close()

	task := args[0]
	if err := prepare(ctx, crew, task); err != nil {
		return err
	}

	maxRound := startFlags.maxRound
	if maxRound <= 0 {
		maxRound = a.settings.MaxRound
	}
	w := cmd.OutOrStdout()
	res, err := crew.Start(ctx, task, agentcrew.StartOptions{
		MaxRound:   maxRound,
		Retry:      groupchat.RetryPolicy{MaxAttempts: startFlags.retries},
		Transcript: startFlags.transcript,
		OnMessage: func(m core.Message) {
			fmt.Fprintf(w, "%s (to chat_manager):\n\n%s\n\n--------------------------------------------------------------------------------\n", m.Source, m.Content)
		},
	})
	if res != nil {
		fmt.Fprintf(w, "finished after %d rounds: %s\n", res.Rounds, res.Reason)
	}
	return err
}

// prepare loads the crew from --load or builds and saves it.
func prepare(ctx context.Context, crew *agentcrew.Crew, task string) error {
	if startFlags.load != "" {
		_, err := crew.Load(ctx, startFlags.load)
		return err
	}
	if _, err := crew.Build(ctx, task, agentcrew.BuildOptions{}); err != nil {
		return err
	}
	_, err := crew.Save("")
	return err
}
