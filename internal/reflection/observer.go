package reflection

// EventType identifies a progress event emitted during a run.
type EventType string

const (
	EventThinkingStarted     EventType = "thinking_started"
	EventThinkingCompleted   EventType = "thinking_completed"
	EventCollectingStarted   EventType = "collecting_started"
	EventCollectingCompleted EventType = "collecting_completed"
	EventReflectionStarted   EventType = "reflection_started"
	EventReflectionCompleted EventType = "reflection_completed"
	EventSessionCompleted    EventType = "session_completed"
)

// Observer receives progress events during a run. Observers are purely
// additive: they never alter control flow, and a panicking observer does not
// fail the turn.
type Observer func(eventType EventType, agent string, data map[string]any)

// emit fires an observer callback, swallowing panics so progress reporting
// can never abort a run.
func emit(obs Observer, eventType EventType, agent string, data map[string]any) {
	if obs == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	obs(eventType, agent, data)
}
