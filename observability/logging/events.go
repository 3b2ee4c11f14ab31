package logging

import (
	"log/slog"

	"dinechain/core/events"
)

// EventLogger returns an emitter that writes one INFO line per committed
// ledger event.
func EventLogger(logger *slog.Logger) events.Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "ledger"))
	return events.EmitterFunc(func(e events.Event) {
		w, ok := e.(events.Wire)
		if !ok {
			logger.Info("event", slog.String("type", e.EventType()))
			return
		}
		evt := w.Event()
		args := make([]any, 0, len(evt.Attributes)+1)
		args = append(args, slog.String("type", evt.Type))
		for k, v := range evt.Attributes {
			args = append(args, slog.String(k, v))
		}
		logger.Info("event", args...)
	})
}
