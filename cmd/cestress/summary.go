package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// summaryRow is a single line of the metric summary.
type summaryRow struct {
	Name  string
	Attrs string
	Value string
}

// summarize writes the metrics recorded so far to w.
func (s *session) summarize(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := s.metrics.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("unable to collect metrics: %w", err)
	}

	var rows []summaryRow
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			rows = append(rows, summaryRows(m)...)
		}
	}

	slices.SortFunc(rows, func(a, b summaryRow) int {
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.Attrs, b.Attrs),
		)
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tATTRIBUTES\tVALUE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Attrs, r.Value)
	}

	return tw.Flush()
}

func summaryRows(m metricdata.Metrics) []summaryRow {
	var rows []summaryRow

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			rows = append(rows, summaryRow{
				Name:  m.Name,
				Attrs: encodeAttrs(dp.Attributes),
				Value: fmt.Sprintf("%d", dp.Value),
			})
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			mean := 0.0
			if dp.Count > 0 {
				mean = dp.Sum / float64(dp.Count)
			}
			rows = append(rows, summaryRow{
				Name:  m.Name,
				Attrs: encodeAttrs(dp.Attributes),
				Value: fmt.Sprintf("count=%d mean=%.3f%s", dp.Count, mean, m.Unit),
			})
		}
	}

	return rows
}

func encodeAttrs(attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return "-"
	}
	return attrs.Encoded(attribute.DefaultEncoder())
}

// close shuts down the session's providers, joining any error to *err.
func (s *session) close(ctx context.Context, err *error) {
	ctx = context.WithoutCancel(ctx)

	*err = errors.Join(
		*err,
		s.meters.Shutdown(ctx),
		s.tracers.Shutdown(ctx),
	)
}
