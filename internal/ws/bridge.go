package ws

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// Bridge couples the manager's event stream to the hub: every broadcast
// event is republished on its entity topic and on the firehose, so a detail
// view can subscribe to exactly one task while a dashboard follows
// everything.
//
// The zero value is not usable — create instances with NewBridge.
type Bridge struct {
	hub    *Hub
	mgr    *taskmgr.Manager
	handle taskmgr.ListenerHandle
	logger *zap.Logger
}

// NewBridge registers a listener on the manager and starts forwarding.
// Call Close to detach on shutdown.
func NewBridge(hub *Hub, mgr *taskmgr.Manager, logger *zap.Logger) *Bridge {
	b := &Bridge{
		hub:    hub,
		mgr:    mgr,
		logger: logger.Named("ws_bridge"),
	}
	b.handle = mgr.AddListener(b.forward)
	return b
}

// Close detaches the bridge from the manager's event stream.
func (b *Bridge) Close() {
	b.mgr.RemoveListener(b.handle)
}

// forward republishes one manager event onto its topics.
func (b *Bridge) forward(evt taskmgr.Event) {
	topic, ok := entityTopic(evt)
	if !ok {
		b.logger.Warn("event with unrecognized payload shape",
			zap.String("event_type", string(evt.Type)),
		)
	} else {
		b.hub.Publish(topic, Message{Type: evt.Type, Topic: topic, Payload: evt.Payload})
	}

	b.hub.Publish(TopicEvents, Message{Type: evt.Type, Topic: TopicEvents, Payload: evt.Payload})
}

// entityTopic derives the per-entity topic from the event payload shape.
func entityTopic(evt taskmgr.Event) (string, bool) {
	switch p := evt.Payload.(type) {
	case *types.Task:
		return fmt.Sprintf("task:%s", p.TaskID), true
	case taskmgr.TaskRemoved:
		return fmt.Sprintf("task:%s", p.TaskID), true
	case *types.Plan:
		return fmt.Sprintf("plan:%s", p.PlanID), true
	case taskmgr.PlanRemoved:
		return fmt.Sprintf("plan:%s", p.PlanID), true
	case *types.Target:
		return fmt.Sprintf("target:%s", p.TargetID), true
	case taskmgr.TargetRemoved:
		return fmt.Sprintf("target:%s", p.TargetID), true
	case taskmgr.TargetStateChange:
		return fmt.Sprintf("target:%s", p.TargetID), true
	}
	return "", false
}
