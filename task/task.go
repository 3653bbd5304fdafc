// Package task provides Task, the fixed-lifecycle state machine every unit
// of work in the system is built from, and TreeTaskNode, which adds
// parent/children structure on top of it.
package task

import (
	"context"

	"github.com/loomwork/loomwork/machine"
	"github.com/loomwork/loomwork/model"
)

// State is one of the four fixed lifecycle states every Task passes
// through.
type State string

const (
	CREATED  State = "CREATED"
	RUNNING  State = "RUNNING"
	FINISHED State = "FINISHED"
	CANCELED State = "CANCELED"
)

// Event drives a Task's lifecycle transitions.
type Event string

const (
	// PLANNED moves CREATED->RUNNING, or re-enters RUNNING as a retry loop.
	PLANNED Event = "PLANNED"
	// DONE moves RUNNING->FINISHED.
	DONE Event = "DONE"
	// INIT resets RUNNING->CREATED so a parent can re-plan.
	INIT Event = "INIT"
	// CANCEL moves RUNNING->CANCELED.
	CANCEL Event = "CANCEL"
)

var (
	allStates = []State{CREATED, RUNNING, FINISHED, CANCELED}
	endStates = []State{FINISHED, CANCELED}
)

// ContextBuffer accumulates the conversation history associated with one
// Task state, kept separate per state so prompts written while a task was
// CREATED do not bleed into the RUNNING prompt and vice versa.
type ContextBuffer struct {
	messages []model.Message
}

// Append adds one message to the buffer.
func (b *ContextBuffer) Append(msg model.Message) {
	b.messages = append(b.messages, msg)
}

// Snapshot returns a copy of the buffer's current contents. Callers must
// not mutate task state through the returned slice's backing messages.
func (b *ContextBuffer) Snapshot() []model.Message {
	out := make([]model.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Clear empties the buffer.
func (b *ContextBuffer) Clear() {
	b.messages = nil
}

// Task is a hierarchical, status-bearing unit of work. It specializes
// machine.StateMachine[State, Event] with the fixed lifecycle described in
// the package's State/Event constants.
type Task struct {
	sm *machine.StateMachine[State, Event]

	title      string
	taskType   string
	tags       map[string]struct{}
	protocol   string
	template   string
	input      any
	output     *string
	errorInfo  *string
	maxDepth   int
	completion model.CompletionConfig
	contexts   map[State]*ContextBuffer
}

// Config bundles the arguments New needs beyond title/taskType, to avoid an
// unwieldy positional parameter list.
type Config struct {
	Protocol         string
	Template         string
	Input            any
	Tags             []string
	MaxDepth         int
	MaxErrorRetry    int
	CompletionConfig model.CompletionConfig
}

// New constructs a Task in state CREATED and compiles its embedded state
// machine with the fixed lifecycle transitions, using cfg.MaxErrorRetry as
// the revisit budget for every state: the retry loop
// (RUNNING,PLANNED)->RUNNING consumes RUNNING's budget on every retry after
// the first RUNNING entry, and re-entry into CREATED via INIT consumes
// CREATED's.
//
// New panics if the fixed transition table fails to compile; that would
// indicate a bug in this package, not caller error.
func New(title, taskType string, cfg Config) *Task {
	sm := machine.New[State, Event](CREATED, allStates, endStates)
	mustSetTransition(sm, CREATED, PLANNED, RUNNING)
	mustSetTransition(sm, RUNNING, DONE, FINISHED)
	mustSetTransition(sm, RUNNING, PLANNED, RUNNING)
	mustSetTransition(sm, RUNNING, INIT, CREATED)
	mustSetTransition(sm, RUNNING, CANCEL, CANCELED)

	if err := sm.Compile(cfg.MaxErrorRetry); err != nil {
		panic("task: fixed lifecycle failed to compile: " + err.Error())
	}

	tags := make(map[string]struct{}, len(cfg.Tags))
	for _, t := range cfg.Tags {
		tags[t] = struct{}{}
	}

	t := &Task{
		sm:         sm,
		title:      title,
		taskType:   taskType,
		tags:       tags,
		protocol:   cfg.Protocol,
		template:   cfg.Template,
		input:      cfg.Input,
		maxDepth:   cfg.MaxDepth,
		completion: cfg.CompletionConfig,
		contexts:   make(map[State]*ContextBuffer, len(allStates)),
	}
	for _, s := range allStates {
		t.contexts[s] = &ContextBuffer{}
	}
	return t
}

func mustSetTransition(sm *machine.StateMachine[State, Event], from State, event Event, to State) {
	if err := sm.SetTransition(from, event, to, nil); err != nil {
		panic("task: " + err.Error())
	}
}

// GetID returns the embedded state machine's unique identifier.
func (t *Task) GetID() string { return t.sm.GetID() }

// GetCurrentState returns the task's current lifecycle state.
func (t *Task) GetCurrentState() State { return t.sm.GetCurrentState() }

// IsEndState reports whether s is FINISHED or CANCELED.
func (t *Task) IsEndState(s State) bool { return t.sm.IsEndState(s) }

// RemainingCreatedRevisits reports how many more times this task may return
// to CREATED (e.g. via INIT, to let a parent re-plan) before HandleEvent
// would raise *machine.CycleLimitError for it.
func (t *Task) RemainingCreatedRevisits() int { return t.sm.RemainingRevisits(CREATED) }

// HandleEvent applies event to the task's lifecycle, returning the new
// state or a structural error (*machine.NoTransitionError,
// *machine.CycleLimitError) if the transition is invalid or exhausted.
func (t *Task) HandleEvent(ctx context.Context, event Event) (State, error) {
	return t.sm.HandleEvent(ctx, event)
}

// GetTitle returns the task's title.
func (t *Task) GetTitle() string { return t.title }

// SetTitle replaces the task's title.
func (t *Task) SetTitle(title string) { t.title = title }

// GetTaskType returns the task's type tag (e.g. "qa", "research").
func (t *Task) GetTaskType() string { return t.taskType }

// HasTag reports whether name is one of the task's tags.
func (t *Task) HasTag(name string) bool {
	_, ok := t.tags[name]
	return ok
}

// Tags returns the task's tags, in no particular order.
func (t *Task) Tags() []string {
	out := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		out = append(out, tag)
	}
	return out
}

// GetProtocol returns the task's free-form input/output shape description.
func (t *Task) GetProtocol() string { return t.protocol }

// GetTemplate returns the task's optional prompt template.
func (t *Task) GetTemplate() string { return t.template }

// GetInput returns the task's input payload.
func (t *Task) GetInput() any { return t.input }

// SetInput replaces the task's input payload.
func (t *Task) SetInput(input any) { t.input = input }

// GetOutput returns the task's output, or nil if none has been set.
func (t *Task) GetOutput() *string { return t.output }

// SetOutput records the task's output without changing its lifecycle state.
func (t *Task) SetOutput(output string) { t.output = &output }

// SetCompleted stores output and transitions the task to FINISHED via DONE,
// a convenience for the common "produced a result, task is done" path.
func (t *Task) SetCompleted(ctx context.Context, output string) error {
	t.SetOutput(output)
	_, err := t.HandleEvent(ctx, DONE)
	return err
}

// GetMaxDepth returns the task's configured maximum tree depth.
func (t *Task) GetMaxDepth() int { return t.maxDepth }

// GetCompletionConfig returns the task's LLM completion configuration.
func (t *Task) GetCompletionConfig() model.CompletionConfig { return t.completion }

// GetContext returns the ContextBuffer for the given lifecycle state,
// creating an empty one if it somehow doesn't exist yet (defensive; New
// always pre-populates every state).
func (t *Task) GetContext(state State) *ContextBuffer {
	buf, ok := t.contexts[state]
	if !ok {
		buf = &ContextBuffer{}
		t.contexts[state] = buf
	}
	return buf
}

// IsError reports whether the task currently carries error information.
func (t *Task) IsError() bool { return t.errorInfo != nil }

// SetError records error information without changing lifecycle state.
func (t *Task) SetError(info string) { t.errorInfo = &info }

// CleanError clears any recorded error information.
func (t *Task) CleanError() { t.errorInfo = nil }

// GetErrorInfo returns the task's recorded error information, or nil if
// none is set.
func (t *Task) GetErrorInfo() *string { return t.errorInfo }
