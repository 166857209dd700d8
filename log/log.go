// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package log provides the process-wide structured logger. Packages obtain
// a child logger once at init time via WithContext; the root handler can be
// swapped later (e.g. after CLI flags are parsed) and all children pick up
// the change.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type Logger = *slog.Logger

// swapHandler forwards records to the current root handler so that child
// loggers created before Setup still honor it.
type swapHandler struct {
	inner atomic.Value // slog.Handler
}

func (h *swapHandler) current() slog.Handler {
	return h.inner.Load().(slog.Handler)
}

func (h *swapHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.current().Enabled(ctx, lvl)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrsHandler{parent: h, attrs: attrs}
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return &groupHandler{parent: h, group: name}
}

type attrsHandler struct {
	parent *swapHandler
	attrs  []slog.Attr
}

func (h *attrsHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.parent.Enabled(ctx, lvl)
}

func (h *attrsHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.parent.current().WithAttrs(h.attrs).Handle(ctx, r)
}

func (h *attrsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrsHandler{parent: h.parent, attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)}
}

func (h *attrsHandler) WithGroup(name string) slog.Handler {
	return &groupHandler{parent: h.parent, group: name}
}

type groupHandler struct {
	parent *swapHandler
	group  string
}

func (h *groupHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.parent.Enabled(ctx, lvl)
}

func (h *groupHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.parent.current().WithGroup(h.group).Handle(ctx, r)
}

func (h *groupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.parent.current().WithGroup(h.group).WithAttrs(attrs)
}

func (h *groupHandler) WithGroup(name string) slog.Handler {
	return &groupHandler{parent: h.parent, group: h.group + "." + name}
}

var (
	level slog.LevelVar
	root  = &swapHandler{}
)

func init() {
	level.Set(slog.LevelInfo)
	root.inner.Store(slog.Handler(NewTerminalHandler(os.Stderr, &level, false)))
	slog.SetDefault(slog.New(root))
}

// Root returns the process root logger.
func Root() Logger {
	return slog.New(root)
}

// WithContext returns a child logger carrying the given key/value pairs.
func WithContext(kv ...any) Logger {
	return Root().With(kv...)
}

// Setup replaces the root handler. Color selection and verbosity are
// decided by the caller (cmd).
func Setup(w io.Writer, lvl slog.Level, useColor bool) {
	level.Set(lvl)
	root.inner.Store(slog.Handler(NewTerminalHandler(w, &level, useColor)))
}

// SetupJSON switches the root handler to line-delimited JSON output.
func SetupJSON(w io.Writer, lvl slog.Level) {
	level.Set(lvl)
	root.inner.Store(slog.Handler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &level})))
}

// Verbosity maps the 0..4 CLI scale onto slog levels.
func Verbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
