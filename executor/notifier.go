package executor

import (
	"errors"

	"replbox/notify"

	logrus "github.com/sirupsen/logrus"
)

// notifier forwards events to the sink. Delivery failures are logged only.
type notifier struct {
	sink   notify.Sink
	logger *logrus.Logger
}

func (n notifier) emit(ev notify.Event) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Notify(ev); err != nil {
		entry := n.logger.WithField("event", string(ev.Kind))
		if errors.Is(err, notify.ErrSinkClosed) {
			entry.Warn("Notification sink closed, event dropped")
			return
		}
		entry.WithError(err).Error("Failed to deliver notification")
	}
}

func (n notifier) status(text string) {
	n.emit(notify.StatusMessage(text))
}
