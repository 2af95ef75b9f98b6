// Package realtime implements the WebSocket gateway: connection
// lifecycle, subscription registry, and event fan-out.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/bus"
)

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FrameConnectionEstablished   = "connection_established"
	FrameSubscriptionConfirmed   = "subscription_confirmed"
	FrameUnsubscriptionConfirmed = "unsubscription_confirmed"
	FrameSubscriptionData        = "subscription_data"
	FramePong                    = "pong"
	FrameError                   = "error"
)

// ClientFrame is one inbound WebSocket message.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubscribeData is the payload of subscribe and unsubscribe frames.
type SubscribeData struct {
	Topic   bus.Topic         `json:"topic"`
	Filters map[string]string `json:"filters"`
}

// serverFrame is the envelope for outbound messages.
type serverFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func marshalFrame(frameType string, data interface{}) []byte {
	b, err := json.Marshal(serverFrame{Type: frameType, Data: data})
	if err != nil {
		// Frame payloads are built from JSON-decoded values and plain
		// structs; a marshal failure is a programming error.
		panic(err)
	}
	return b
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ConnectionEstablishedFrame greets a newly accepted connection.
func ConnectionEstablishedFrame(connectionID string, p *auth.Principal) []byte {
	return marshalFrame(FrameConnectionEstablished, map[string]interface{}{
		"connectionId": connectionID,
		"user": map[string]string{
			"id":   p.ID,
			"name": p.Name,
			"role": p.Role.String(),
		},
		"timestamp": isoNow(),
	})
}

// SubscriptionConfirmedFrame acknowledges a successful subscribe.
func SubscriptionConfirmedFrame(topic bus.Topic, filters map[string]string, key string) []byte {
	return marshalFrame(FrameSubscriptionConfirmed, map[string]interface{}{
		"topic":           topic,
		"filters":         filters,
		"subscriptionKey": key,
	})
}

// UnsubscriptionConfirmedFrame acknowledges an unsubscribe.
func UnsubscriptionConfirmedFrame(topic bus.Topic, filters map[string]string) []byte {
	return marshalFrame(FrameUnsubscriptionConfirmed, map[string]interface{}{
		"topic":   topic,
		"filters": filters,
	})
}

// SubscriptionDataFrame carries one event to a subscriber.
func SubscriptionDataFrame(topic bus.Topic, payload map[string]interface{}, ts time.Time) []byte {
	return marshalFrame(FrameSubscriptionData, map[string]interface{}{
		"topic":     topic,
		"payload":   payload,
		"timestamp": ts.UTC().Format(time.RFC3339),
	})
}

// PongFrame answers a client ping.
func PongFrame() []byte {
	return marshalFrame(FramePong, map[string]string{"timestamp": isoNow()})
}

// ErrorFrame reports a client-visible failure.
func ErrorFrame(message string) []byte {
	return marshalFrame(FrameError, map[string]string{
		"message":   message,
		"timestamp": isoNow(),
	})
}
