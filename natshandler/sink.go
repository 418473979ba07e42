package natshandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"replbox/model"
	"replbox/notify"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes sandbox events as JSON on a single subject.
type NATSSink struct {
	conn    Publisher
	subject string
	now     func() time.Time
}

func NewNATSSink(conn Publisher, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject, now: time.Now}
}

func (s *NATSSink) Notify(ev notify.Event) error {
	data, err := json.Marshal(model.Event{
		Kind:      string(ev.Kind),
		Text:      ev.Text,
		RequestID: ev.RequestID,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := s.conn.Publish(s.subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
			return fmt.Errorf("%w: %w", notify.ErrSinkClosed, err)
		}
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// DecodeEvent converts a published event back into a notify.Event.
func DecodeEvent(data []byte) (notify.Event, time.Time, error) {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return notify.Event{}, time.Time{}, err
	}
	return notify.Event{Kind: notify.Kind(ev.Kind), Text: ev.Text, RequestID: ev.RequestID}, ev.Timestamp, nil
}
