package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Event types, one per lifecycle step per target.
const (
	TypeContainerStarted  = "container.started"
	TypeContainerReady    = "container.ready"
	TypeContainerRemapped = "container.remapped"
	TypeContainerStopped  = "container.stopped"

	TypeAppStarted        = "app.started"
	TypeAppAlreadyRunning = "app.already_running"
	TypeAppHealthy        = "app.healthy"
	TypeAppStopped        = "app.stopped"

	TypeWarning = "warning"
	TypeFailure = "failure"

	TypeProxyStarted = "proxy.started"
	TypeProxyStopped = "proxy.stopped"
)

// Event is one per-target lifecycle notification.
type Event struct {
	Type   string    `json:"type"`
	Target string    `json:"target"`
	Kind   string    `json:"kind,omitempty"` // "app" | "container" | "proxy"
	PID    int       `json:"pid,omitempty"`
	Port   int       `json:"port,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Publish emits one event on the lifecycle topic. Nil publisher is allowed so
// library callers can run without a bus.
func Publish(pub message.Publisher, ev Event) {
	if pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = pub.Publish(TopicLifecycle, message.NewMessage(watermill.NewUUID(), b))
}

// Decode parses a lifecycle message payload.
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode lifecycle event")
	}
	return ev, nil
}
