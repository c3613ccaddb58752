package main

import (
	"fmt"
	"log/slog"

	"github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/stress"
	"github.com/dogmatiq/completion/internal/telemetry"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	LogLevel string
}

func newRootCommand(s settings) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cestress",
		Short: "Stress test completion events",
		Long: `Run concurrent scenarios against completion events and print a
summary of the metrics they record.

Flag defaults are read from CESTRESS_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(
		&opts.LogLevel,
		"log-level",
		s.LogLevel,
		"minimum level of log messages (debug|info|warn|error)",
	)

	cmd.AddCommand(
		newDAGCommand(opts, s.Rounds),
		newRandomCommand(opts, s.Random),
	)

	return cmd
}

// session is the state of a single command invocation.
type session struct {
	Runner *stress.Runner

	metrics *sdkmetric.ManualReader
	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider
}

func (o *rootOptions) newSession(cmd *cobra.Command) (*session, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := slog.New(
		slog.NewTextHandler(
			cmd.ErrOrStderr(),
			&slog.HandlerOptions{Level: level},
		),
	)

	reader := sdkmetric.NewManualReader()
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tracers := sdktrace.NewTracerProvider()

	return &session{
		Runner: &stress.Runner{
			Telemetry: &telemetry.Provider{
				TracerProvider: tracers,
				MeterProvider:  meters,
				Logger:         logger,
			},
			Instrumentation: completion.NewInstrumentation(
				completion.WithMeterProvider(meters),
				completion.WithLogger(logger),
				completion.WithSubsystem("cestress"),
			),
		},
		metrics: reader,
		meters:  meters,
		tracers: tracers,
	}, nil
}
