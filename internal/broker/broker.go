// Package broker pushes named events to the live sessions of a target
// user set. Delivery is best-effort: offline targets are skipped
// silently and clients reconcile through the commit log on reconnect.
package broker

import (
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/registry"
)

// Event names pushed to clients.
const (
	EventMessage            = "message"
	EventMessageEdit        = "messageEdit"
	EventMessageDelete      = "messageDelete"
	EventConversationDelete = "conversationDelete"
	EventUserTyping         = "userTyping"
)

// Envelope is the wire shape of one pushed event.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Broker is a thin facade over the connection registry.
type Broker struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Broker {
	return &Broker{registry: reg}
}

// Publish serializes the event once and writes it to every live
// session of every target user. No filtering, no retry.
func (b *Broker) Publish(event string, targets []string, payload interface{}) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		jww.ERROR.Printf("broker: dropping %s event: %v", event, err)
		return
	}
	b.registry.Send(data, targets)
}
