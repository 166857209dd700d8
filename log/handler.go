// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const termTimeFormat = "Jan 02 15:04:05"

// TerminalHandler formats records for humans:
//
//	[LEVL] [Jan 02 15:04:05] message key=value key=value ...
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	lvl      *slog.LevelVar
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler returns a handler writing human readable log lines,
// optionally color coding the level tag.
func NewTerminalHandler(wr io.Writer, lvl *slog.LevelVar, useColor bool) *TerminalHandler {
	return &TerminalHandler{wr: wr, lvl: lvl, useColor: useColor}
}

func (h *TerminalHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.lvl.Level()
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(h.levelTag(r.Level))
	b.WriteString("] [")
	b.WriteString(r.Time.Format(termTimeFormat))
	b.WriteString("] ")
	b.WriteString(r.Message)

	for _, attr := range h.attrs {
		writeAttr(&b, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.wr, b.String())
	return err
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &TerminalHandler{wr: h.wr, lvl: h.lvl, useColor: h.useColor, attrs: merged}
}

func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	// groups are flattened; prefixed keys would add noise for our key set
	return h
}

func (h *TerminalHandler) levelTag(lvl slog.Level) string {
	tag, color := "INFO", "32"
	switch {
	case lvl >= slog.LevelError:
		tag, color = "EROR", "31"
	case lvl >= slog.LevelWarn:
		tag, color = "WARN", "33"
	case lvl < slog.LevelInfo:
		tag, color = "DBUG", "36"
	}
	if h.useColor {
		return "\x1b[" + color + "m" + tag + "\x1b[0m"
	}
	return tag
}

func writeAttr(b *strings.Builder, attr slog.Attr) {
	b.WriteByte(' ')
	b.WriteString(attr.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(attr.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " =") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return fmt.Sprint(v.Any())
	}
}
