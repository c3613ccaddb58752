package main

import (
	"log/slog"
	"time"

	"github.com/dogmatiq/completion/internal/stress"
	"github.com/dogmatiq/ferrite"
)

var (
	threads = ferrite.
		Unsigned[uint]("CESTRESS_THREADS", "the number of coordinators in the random scenario").
		WithDefault(0x10).
		Required()

	workerPairs = ferrite.
		Unsigned[uint]("CESTRESS_WORKER_PAIRS", "the number of worker pairs per coordinator").
		WithDefault(0x20).
		Required()

	opsPerPair = ferrite.
		Unsigned[uint]("CESTRESS_OPS_PER_PAIR", "the number of events shared by each worker pair").
		WithDefault(0x8).
		Required()

	iterations = ferrite.
		Unsigned[uint]("CESTRESS_ITERATIONS", "the number of times each worker pair is given work").
		WithDefault(0x10).
		Required()

	maxDelay = ferrite.
		Duration("CESTRESS_MAX_DELAY", "the maximum delay between activating and completing an event").
		WithDefault(3 * time.Millisecond).
		Required()

	seed = ferrite.
		String("CESTRESS_SEED", "the seed from which random choices are derived").
		Optional()

	logLevel = ferrite.
		String("CESTRESS_LOG_LEVEL", "the minimum level of log messages to write to stderr").
		WithDefault("info").
		WithConstraint(
			"must be a valid slog level",
			func(v string) bool {
				var l slog.Level
				return l.UnmarshalText([]byte(v)) == nil
			},
		).
		Required()
)

// settings are the defaults of the command-line flags.
type settings struct {
	Random   stress.RandomConfig
	Rounds   int
	LogLevel string
}

func defaultsFromEnv() settings {
	s := settings{
		Random: stress.RandomConfig{
			Threads:     int(threads.Value()),
			WorkerPairs: int(workerPairs.Value()),
			OpsPerPair:  int(opsPerPair.Value()),
			Iterations:  int(iterations.Value()),
			MaxDelay:    maxDelay.Value(),
		},
		Rounds:   1000,
		LogLevel: logLevel.Value(),
	}

	if v, ok := seed.Value(); ok {
		s.Random.Seed = v
	}

	return s
}
