package account

import "github.com/rs/zerolog"

// Notifier shows a short, transient message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// LogNotifier reports messages through a logger.
func LogNotifier(logger *zerolog.Logger) Notifier {
	return NotifierFunc(func(msg string) {
		logger.Info().Msg(msg)
	})
}
