package relay

import (
	"time"

	"github.com/rickgao/esr-receiver/internal/router"
)

// MessageType is the "type" field of every relay message.
type MessageType string

const (
	MsgState MessageType = "state"
	MsgScan  MessageType = "scan"
)

// Message is the JSON frame sent to websocket clients.
type Message struct {
	Type   MessageType `json:"type"`
	ID     string      `json:"id,omitempty"`
	State  string      `json:"state,omitempty"`
	Text   string      `json:"text,omitempty"`
	Source string      `json:"source,omitempty"`
	At     time.Time   `json:"at"`
}

// fromEvent converts a router event; ok is false for kinds the relay skips.
func fromEvent(ev router.Event) (msg Message, ok bool) {
	switch ev.Kind {
	case router.KindState:
		return Message{
			Type:   MsgState,
			State:  ev.State.String(),
			Source: ev.Source,
			At:     ev.ReceivedAt,
		}, true
	case router.KindScan:
		return Message{
			Type:   MsgScan,
			ID:     ev.ID.String(),
			Text:   ev.Text,
			Source: ev.Source,
			At:     ev.ReceivedAt,
		}, true
	default:
		return Message{}, false
	}
}
