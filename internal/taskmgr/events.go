package taskmgr

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/metrics"
	"github.com/keepdeck-io/keepdeck/internal/types"
)

// EventType identifies the kind of state change carried by an Event.
// Every successful mutating operation broadcasts exactly one event; failed
// operations broadcast none.
type EventType string

const (
	EventCreatePlan EventType = "CREATE_PLAN"
	EventUpdatePlan EventType = "UPDATE_PLAN"
	EventRemovePlan EventType = "REMOVE_PLAN"

	EventCreateTarget      EventType = "CREATE_TARGET"
	EventUpdateTarget      EventType = "UPDATE_TARGET"
	EventRemoveTarget      EventType = "REMOVE_TARGET"
	EventChangeTargetState EventType = "CHANGE_TARGET_STATE"

	EventCreateTask   EventType = "CREATE_TASK"
	EventUpdateTask   EventType = "UPDATE_TASK"
	EventCompleteTask EventType = "COMPLETE_TASK"
	EventFailTask     EventType = "FAIL_TASK"
	EventPauseTask    EventType = "PAUSE_TASK"
	EventResumeTask   EventType = "RESUME_TASK"
	EventRemoveTask   EventType = "REMOVE_TASK"
)

// Event is the envelope delivered to listeners. Payload is one of the types
// below, determined by Type:
//
//	CREATE_PLAN, UPDATE_PLAN              *types.Plan
//	REMOVE_PLAN                           PlanRemoved
//	CREATE_TARGET, UPDATE_TARGET          *types.Target
//	REMOVE_TARGET                         TargetRemoved
//	CHANGE_TARGET_STATE                   TargetStateChange
//	CREATE_TASK .. RESUME_TASK            *types.Task
//	REMOVE_TASK                           TaskRemoved
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// PlanRemoved is the payload of REMOVE_PLAN.
type PlanRemoved struct {
	PlanID string `json:"plan_id"`
}

// TargetRemoved is the payload of REMOVE_TARGET.
type TargetRemoved struct {
	TargetID string `json:"target_id"`
}

// TaskRemoved is the payload of REMOVE_TASK.
type TaskRemoved struct {
	TaskID string `json:"taskid"`
}

// TargetStateChange is the payload of CHANGE_TARGET_STATE. It is emitted
// from the target refresh path, the only place where a state transition is
// observed rather than commanded.
type TargetStateChange struct {
	TargetID string            `json:"target_id"`
	OldState types.TargetState `json:"old_state"`
	NewState types.TargetState `json:"new_state"`
}

// Listener receives every broadcast event. Listeners run concurrently with
// each other and must not assume any ordering relative to other listeners.
type Listener func(Event)

// ListenerHandle identifies a registered listener for removal. Handles are
// opaque; function values are not comparable, so registration returns one.
type ListenerHandle string

// listenerRegistry is the fan-out point for manager events.
//
// emit runs every listener on its own goroutine and waits for all of them to
// settle before returning. A panicking listener is recovered and logged; it
// never aborts delivery to the others and never reaches the emitting caller.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[ListenerHandle]Listener

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newListenerRegistry(logger *zap.Logger, m *metrics.Metrics) *listenerRegistry {
	return &listenerRegistry{
		listeners: make(map[ListenerHandle]Listener),
		logger:    logger,
		metrics:   m,
	}
}

func (r *listenerRegistry) add(fn Listener) ListenerHandle {
	h := ListenerHandle(uuid.NewString())
	r.mu.Lock()
	r.listeners[h] = fn
	r.mu.Unlock()
	return h
}

func (r *listenerRegistry) remove(h ListenerHandle) {
	r.mu.Lock()
	delete(r.listeners, h)
	r.mu.Unlock()
}

// emit broadcasts evt to all currently registered listeners and blocks until
// every one has returned or panicked.
func (r *listenerRegistry) emit(evt Event) {
	r.mu.RLock()
	// Snapshot outside the dispatch so a listener that removes itself (or
	// registers another) during delivery does not deadlock on the lock.
	targets := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		targets = append(targets, fn)
	}
	r.mu.RUnlock()

	r.metrics.IncEvent(string(evt.Type))

	var wg sync.WaitGroup
	for _, fn := range targets {
		wg.Add(1)
		go func(fn Listener) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("event listener panicked",
						zap.String("event_type", string(evt.Type)),
						zap.Any("panic", rec),
					)
				}
			}()
			fn(evt)
		}(fn)
	}
	wg.Wait()
}
