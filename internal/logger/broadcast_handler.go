package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// BroadcastHandler wraps another slog.Handler and mirrors every record into
// the ring buffer and the subscriber bus. Group nesting is flattened into
// dotted keys ("req.method") so events stay a flat JSON object on the wire.
type BroadcastHandler struct {
	next    slog.Handler
	preset  map[string]any
	keyPath string
}

func NewBroadcastHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &BroadcastHandler{next: next}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)

	attrs := make(map[string]any, len(h.preset)+r.NumAttrs())
	for k, v := range h.preset {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, h.keyPath, a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	evt := Event{
		Level: r.Level.String(),
		Msg:   r.Message,
		Attrs: attrs,
	}
	if !r.Time.IsZero() {
		evt.Time = r.Time.UTC().Format(time.RFC3339Nano)
	}
	addEvent(evt)

	if defaultBus.count() > 0 {
		if b, mErr := json.Marshal(evt); mErr == nil {
			defaultBus.publish(append(b, '\n'))
		}
	}
	return err
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := h.clone()
	out.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		flatten(out.preset, out.keyPath, a)
	}
	return out
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	out := h.clone()
	out.next = h.next.WithGroup(name)
	if name != "" {
		out.keyPath = joinKey(out.keyPath, name)
	}
	return out
}

func (h *BroadcastHandler) clone() *BroadcastHandler {
	preset := make(map[string]any, len(h.preset))
	for k, v := range h.preset {
		preset[k] = v
	}
	return &BroadcastHandler{next: h.next, preset: preset, keyPath: h.keyPath}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func flatten(dst map[string]any, path string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := joinKey(path, a.Key)
	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flatten(dst, key, ga)
		}
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindTime:
		dst[key] = a.Value.Time().UTC().Format(time.RFC3339Nano)
	default:
		dst[key] = a.Value.Any()
	}
}
