package pubsub

import (
	"context"
	"encoding/json"
)

// Topics served by the web server.
const (
	TopicFrameStatus = "frame_status"
	TopicFrames      = "frames"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "frame_status", "frames")
	Type    string          `json:"type"`    // Event type (e.g., "loading", "compiled", "failed")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// FrameStatus is published on TopicFrameStatus while a frame is reloaded
type FrameStatus struct {
	State   string `json:"state"`   // loading, compiling, executing, ready, failed
	Message string `json:"message"` // Human-readable status message
	Frame   string `json:"frame"`   // Frame ID, once known
}

// FrameSummary is published on TopicFrames after each compile
type FrameSummary struct {
	Frame     string   `json:"frame"`
	Name      string   `json:"name"`
	Passes    int      `json:"passes"`
	Culled    []string `json:"culled"`
	Resources int      `json:"resources"`
	Live      int      `json:"live"`
	Executed  bool     `json:"executed"`
}
