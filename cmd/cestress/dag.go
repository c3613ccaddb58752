package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDAGCommand(root *rootOptions, rounds int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Drive events through their lifecycle from independent goroutines",
		Long: `Drive a single event through its lifecycle from seven goroutines that
are ordered only by semaphores, three of which wait for the event to become
done. The scenario is repeated for the given number of rounds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if rounds <= 0 {
				return errNonPositive("--rounds")
			}

			s, err := root.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context(), &err)

			if err := s.Runner.RunDAG(cmd.Context(), rounds); err != nil {
				return err
			}

			return s.summarize(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", rounds, "number of rounds to run")

	return cmd
}

func errNonPositive(flag string) error {
	return fmt.Errorf("%s must be positive", flag)
}
