package observability

import "context"

// NoOpObserver discards all events. It is the default for caches and stores.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
