// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog returns an *slog.Logger that writes through the global zerolog
// logger. The supervisor tree consumes suture events through sutureslog,
// which requires slog; this bridge keeps those events in the same output
// stream and format as everything else.
func Slog() *slog.Logger {
	return slog.New(slogHandler{})
}

type slogHandler struct {
	fields []slog.Attr
}

func (h slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zerolog.GlobalLevel() <= mapLevel(level)
}

func (h slogHandler) Handle(_ context.Context, rec slog.Record) error {
	// WithLevel has a pointer receiver; the logger needs an addressable
	// copy.
	l := Logger()
	ev := l.WithLevel(mapLevel(rec.Level))
	for _, attr := range h.fields {
		ev = appendAttr(ev, attr)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		ev = appendAttr(ev, attr)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (h slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.fields)+len(attrs))
	merged = append(merged, h.fields...)
	merged = append(merged, attrs...)
	return slogHandler{fields: merged}
}

func (h slogHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; suture events do not nest.
	return h
}

func appendAttr(ev *zerolog.Event, attr slog.Attr) *zerolog.Event {
	return ev.Interface(attr.Key, attr.Value.Any())
}

func mapLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
