// Package ws implements the real-time pub/sub hub that pushes manager events
// to connected frontend clients. It uses gorilla/websocket under the hood and
// exposes a topic-based broadcast API; the bridge subscribes to the task
// manager's event stream and republishes every event onto its topics.
//
// Topic naming convention:
//
//	task:<id>    — lifecycle and progress updates for one task
//	plan:<id>    — mutations of one plan
//	target:<id>  — mutations and connectivity changes for one target
//	events       — the firehose: every broadcast event
package ws

import "github.com/keepdeck-io/keepdeck/internal/taskmgr"

// TopicEvents is the firehose topic carrying every event.
const TopicEvents = "events"

// Message is the envelope for every WebSocket frame sent to clients.
// The frontend deserializes this struct and dispatches on Type.
//
// JSON example:
//
//	{"type":"UPDATE_TASK","topic":"task:018f...","payload":{"taskid":"018f...","state":"RUNNING",...}}
type Message struct {
	// Type is the manager event type so the client can route it correctly.
	Type taskmgr.EventType `json:"type"`

	// Topic is the pub/sub channel this message was published on.
	// Clients use it to associate the update with the correct UI element.
	Topic string `json:"topic"`

	// Payload carries the event payload, in the shapes documented on
	// taskmgr.Event.
	Payload any `json:"payload"`
}
