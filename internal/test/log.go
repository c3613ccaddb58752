package test

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// NewLogger returns a logger that writes to the test's log.
func NewLogger(t FailerT) *slog.Logger {
	return slog.New(
		&handler{T: t},
	)
}

type handler struct {
	T     FailerT
	attrs []slog.Attr
	group string
}

func (h *handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	attrs := slices.Clone(h.attrs)

	rec.Attrs(func(attr slog.Attr) bool {
		if h.group != "" {
			attr.Key = h.group + "." + attr.Key
		}
		attrs = append(attrs, attr)
		return true
	})

	buf := &strings.Builder{}
	buf.WriteString(rec.Level.String())

	if len(attrs) == 0 {
		buf.WriteString(" ─ ")
	} else {
		buf.WriteString(" ┬ ")
	}
	buf.WriteString(rec.Message)

	width := 0
	for _, attr := range attrs {
		width = max(width, len(attr.Key))
	}

	indent := strings.Repeat(" ", len(rec.Level.String())+1)

	for i, attr := range attrs {
		buf.WriteByte('\n')
		buf.WriteString(indent)

		if i == len(attrs)-1 {
			buf.WriteString("╰── ")
		} else {
			buf.WriteString("├── ")
		}

		buf.WriteString(attr.Key)
		buf.WriteByte(' ')
		buf.WriteString(strings.Repeat("┈", width-len(attr.Key)+1))
		buf.WriteByte(' ')

		v := attr.Value.String()
		if strings.ContainsAny(v, " \t\n\r") {
			fmt.Fprintf(buf, "%q", v)
		} else {
			buf.WriteString(v)
		}
	}

	h.T.Log(buf.String())

	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.group != "" {
		attrs = slices.Clone(attrs)
		for i := range attrs {
			attrs[i].Key = h.group + "." + attrs[i].Key
		}
	}

	return &handler{
		T:     h.T,
		attrs: append(slices.Clone(h.attrs), attrs...),
		group: h.group,
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if h.group != "" {
		name = h.group + "." + name
	}

	return &handler{
		T:     h.T,
		attrs: h.attrs,
		group: name,
	}
}
