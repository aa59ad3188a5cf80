package worker

import (
	"go.uber.org/zap"
)

// Subscriber attaches its handlers to the event dispatcher.
type Subscriber interface {
	RegisterHandlers()
}

// StartSubscribers registers every non-nil subscriber. The dispatcher is
// synchronous, so this must run before the listeners start accepting traffic.
func StartSubscribers(logger *zap.Logger, subscribers map[string]Subscriber) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for name, subscriber := range subscribers {
		if subscriber == nil {
			continue
		}
		subscriber.RegisterHandlers()
		logger.Debug("event subscriber registered", zap.String("subscriber", name))
	}
}
