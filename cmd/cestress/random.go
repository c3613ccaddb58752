package main

import (
	"github.com/dogmatiq/completion/internal/stress"
	"github.com/spf13/cobra"
)

func newRandomCommand(root *rootOptions, cfg stress.RandomConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Run randomized doer/waiter pairs that share reusable events",
		Long: `Run coordinators that hand work to pairs of workers. Each doer completes
a shared set of events in random order while its waiter observes them through
OR sets. Events are reset, destroyed and reallocated as they are reused, and
every completion is checked to be visible to the waiter that observed it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			s, err := root.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context(), &err)

			if err := s.Runner.RunRandom(cmd.Context(), cfg); err != nil {
				return err
			}

			return s.summarize(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Threads, "threads", cfg.Threads, "number of coordinators")
	flags.IntVar(&cfg.WorkerPairs, "pairs", cfg.WorkerPairs, "number of worker pairs per coordinator")
	flags.IntVar(&cfg.OpsPerPair, "ops", cfg.OpsPerPair, "number of events shared by each worker pair")
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "number of times each worker pair is given work")
	flags.DurationVar(&cfg.MaxDelay, "max-delay", cfg.MaxDelay, "maximum delay between activating and completing an event")
	flags.StringVar(&cfg.Seed, "seed", cfg.Seed, "seed from which random choices are derived (random if empty)")

	return cmd
}
