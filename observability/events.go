package observability

import "dinechain/core/events"

// MetricsEmitter turns committed ledger events into Prometheus samples.
type MetricsEmitter struct{}

// Emit implements events.Emitter.
func (MetricsEmitter) Emit(e events.Event) {
	switch evt := e.(type) {
	case events.PaymentProcessed:
		restaurant := ""
		if w := evt.Event(); w != nil {
			restaurant = w.Attributes["restaurant"]
		}
		Ledger().RecordPayment(restaurant, evt.OriginalAmount, evt.AdjustedAmount, evt.CustomRatio)
	case events.RestaurantRegistered:
		Ledger().RecordLifecycle("registered", "")
	case events.RestaurantRemoved:
		restaurant := ""
		if w := evt.Event(); w != nil {
			restaurant = w.Attributes["restaurant"]
		}
		Ledger().RecordLifecycle("removed", restaurant)
	}
}
