package gateway

import "github.com/rs/zerolog"

// Notifier is the global error-notification sink: a side channel for
// user-visible messages. It must never be used for control flow.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) {
	f(message)
}

// NewLogNotifier returns a Notifier that records messages on the given
// logger. It is the default sink.
func NewLogNotifier(log zerolog.Logger) Notifier {
	return NotifierFunc(func(message string) {
		log.Warn().Str("message", message).Msg("api error notification")
	})
}
