package ws

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// newRunningHub starts a hub whose Run loop stops with the test.
func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

// newFakeClient builds a client that is never attached to a real connection;
// messages are read straight off its send buffer.
func newFakeClient(buffer int, topics ...string) *Client {
	return &Client{
		send:   make(chan Message, buffer),
		topics: topics,
		logger: zap.NewNop(),
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestHubRoutesByTopic(t *testing.T) {
	h := newRunningHub(t)

	taskView := newFakeClient(8, "task:t1")
	dashboard := newFakeClient(8, TopicEvents)
	h.Subscribe(taskView)
	h.Subscribe(dashboard)

	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 2 }) {
		t.Fatalf("connected = %d, want 2", h.ConnectedCount())
	}

	h.Publish("task:t1", Message{Type: taskmgr.EventUpdateTask, Topic: "task:t1"})
	h.Publish(TopicEvents, Message{Type: taskmgr.EventUpdateTask, Topic: TopicEvents})

	select {
	case msg := <-taskView.send:
		if msg.Topic != "task:t1" {
			t.Fatalf("task view got topic %q", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("task view received nothing")
	}

	select {
	case msg := <-dashboard.send:
		if msg.Topic != TopicEvents {
			t.Fatalf("dashboard got topic %q", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("dashboard received nothing")
	}

	// Nobody subscribed to task:t2; publishing there reaches no one.
	h.Publish("task:t2", Message{Type: taskmgr.EventUpdateTask, Topic: "task:t2"})
	select {
	case msg := <-taskView.send:
		t.Fatalf("task view got stray message on %q", msg.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := newRunningHub(t)

	c := newFakeClient(8, "plan:p1")
	h.Subscribe(c)
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 1 }) {
		t.Fatal("client never registered")
	}

	h.Unsubscribe(c)
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 0 }) {
		t.Fatal("client never unregistered")
	}

	// The send channel is closed on unregister, which is the writePump's
	// signal to drain and exit.
	select {
	case _, open := <-c.send:
		if open {
			t.Fatal("got a message instead of a closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	h := newRunningHub(t)

	slow := newFakeClient(1, "events")
	h.Subscribe(slow)
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 1 }) {
		t.Fatal("client never registered")
	}

	// First publish fills the buffer; the second finds it full and evicts
	// the client rather than blocking.
	h.Publish("events", Message{Topic: "events"})
	h.Publish("events", Message{Topic: "events"})

	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 0 }) {
		t.Fatal("slow client was not disconnected")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := newFakeClient(8, "events")
	h.Subscribe(c)
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 1 }) {
		t.Fatal("client never registered")
	}

	cancel()
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 0 }) {
		t.Fatal("clients not cleared on shutdown")
	}
	select {
	case _, open := <-c.send:
		if open {
			t.Fatal("got a message instead of a closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}

func TestEntityTopic(t *testing.T) {
	tests := []struct {
		name  string
		event taskmgr.Event
		want  string
	}{
		{
			name:  "task snapshot",
			event: taskmgr.Event{Type: taskmgr.EventUpdateTask, Payload: &types.Task{TaskID: "t1"}},
			want:  "task:t1",
		},
		{
			name:  "task removal",
			event: taskmgr.Event{Type: taskmgr.EventRemoveTask, Payload: taskmgr.TaskRemoved{TaskID: "t2"}},
			want:  "task:t2",
		},
		{
			name:  "plan snapshot",
			event: taskmgr.Event{Type: taskmgr.EventCreatePlan, Payload: &types.Plan{PlanID: "p1"}},
			want:  "plan:p1",
		},
		{
			name:  "plan removal",
			event: taskmgr.Event{Type: taskmgr.EventRemovePlan, Payload: taskmgr.PlanRemoved{PlanID: "p2"}},
			want:  "plan:p2",
		},
		{
			name:  "target snapshot",
			event: taskmgr.Event{Type: taskmgr.EventUpdateTarget, Payload: &types.Target{TargetID: "tg1"}},
			want:  "target:tg1",
		},
		{
			name:  "target state change",
			event: taskmgr.Event{Type: taskmgr.EventChangeTargetState, Payload: taskmgr.TargetStateChange{TargetID: "tg2"}},
			want:  "target:tg2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := entityTopic(tt.event)
			if !ok {
				t.Fatal("no topic derived")
			}
			if got != tt.want {
				t.Fatalf("topic = %q, want %q", got, tt.want)
			}
		})
	}

	if _, ok := entityTopic(taskmgr.Event{Payload: 42}); ok {
		t.Fatal("unrecognized payload produced a topic")
	}
}

func TestBridgeForward(t *testing.T) {
	h := newRunningHub(t)

	taskView := newFakeClient(8, "task:t1")
	firehose := newFakeClient(8, TopicEvents)
	h.Subscribe(taskView)
	h.Subscribe(firehose)
	if !waitFor(t, time.Second, func() bool { return h.ConnectedCount() == 2 }) {
		t.Fatal("clients never registered")
	}

	b := &Bridge{hub: h, logger: zap.NewNop()}
	b.forward(taskmgr.Event{
		Type:    taskmgr.EventUpdateTask,
		Payload: &types.Task{TaskID: "t1", State: types.TaskStateRunning},
	})

	for name, c := range map[string]*Client{"task view": taskView, "firehose": firehose} {
		select {
		case msg := <-c.send:
			if msg.Type != taskmgr.EventUpdateTask {
				t.Fatalf("%s got type %s", name, msg.Type)
			}
			task, ok := msg.Payload.(*types.Task)
			if !ok || task.TaskID != "t1" {
				t.Fatalf("%s payload = %#v", name, msg.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s received nothing", name)
		}
	}
}
