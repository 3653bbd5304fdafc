// Package scheduler provides Scheduler, the state-driven controller that
// walks a TreeTaskNode through its lifecycle by invoking per-state
// handlers and reacting to transitions, as opposed to Workflow which is
// event-driven.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loomwork/loomwork/machine"
	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

// RunOnceFunc invokes one attempt of an Agent's workflow against a task
// node's RUNNING context, reporting only success or failure; the scheduler
// never sees the Agent's stage type. A RunOnceFunc must not call
// node.HandleEvent (or anything that does, like SetCompleted) itself — the
// RUNNING handler maps its return value onto DONE/PLANNED/CANCEL and
// applies that through the normal Schedule loop.
type RunOnceFunc func(ctx context.Context, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) error

type unrecoverableError struct{ err error }

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

// Unrecoverable wraps err so the RUNNING handler issues CANCEL instead of
// PLANNED, skipping the retry budget entirely.
func Unrecoverable(err error) error { return &unrecoverableError{err: err} }

// IsUnrecoverable reports whether err, or anything it wraps, was marked
// with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var u *unrecoverableError
	return errors.As(err, &u)
}

// NoHandlerError reports that a task entered a state with no registered
// on-state handler.
type NoHandlerError struct{ State task.State }

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("scheduler: no handler registered for state %v", e.State)
}

// StateHandler runs while a node sits in a given state. Returning a zero
// Event means "do nothing, stop driving this node for now" (used while a
// recursive child schedule is in progress); any other event is applied via
// node.HandleEvent.
type StateHandler func(ctx context.Context, s *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) (task.Event, error)

// StateTransition identifies a (from,to) pair an on_state_changed callback
// fires for.
type StateTransition struct {
	From task.State
	To   task.State
}

// StateChangedFn is invoked exactly once after the (from,to) transition in
// its StateTransition key has been applied. It must not attempt to drive
// another transition.
type StateChangedFn func(ctx context.Context, s *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode)

// Scheduler is the state-driven lifecycle controller for a TreeTaskNode.
// Per an explicit design choice (the tree builder subsumes the simple
// scheduler), there is no separate non-tree Scheduler type: passing a nil
// orchestrator to New degenerates CREATED's handler to an immediate
// PLANNED, and a node with no children degenerates RUNNING's handler to
// the plain executor path.
type Scheduler struct {
	// validation is compiled once at construction purely to confirm the
	// fixed (TaskState,TaskEvent) transition table is structurally sound
	// (every state reachable, every state can reach an end state) before
	// any task is driven against it; actual event application always goes
	// through a node's own embedded state machine via node.HandleEvent, so
	// that each node's individually configured MaxErrorRetry governs its
	// own revisit budget.
	validation *machine.StateMachine[task.State, task.Event]

	onState        map[task.State]StateHandler
	onStateChanged map[StateTransition]StateChangedFn

	executor     RunOnceFunc
	orchestrator RunOnceFunc
}

// New constructs a Scheduler with the built-in CREATED/RUNNING/FINISHED/
// CANCELED handlers and transition callbacks pre-registered. executor runs
// one attempt at a leaf node; orchestrator, if non-nil, runs one attempt at
// producing sub-tasks for a tree node via CREATED (tree/orchestration
// mode). maxErrorRetry only bounds the validation machine: each node's own
// retry budget comes from the MaxErrorRetry it was constructed with.
func New(maxErrorRetry int, executor, orchestrator RunOnceFunc) (*Scheduler, error) {
	if executor == nil {
		return nil, errors.New("scheduler: executor is required")
	}

	sm := machine.New[task.State, task.Event](task.CREATED,
		[]task.State{task.CREATED, task.RUNNING, task.FINISHED, task.CANCELED},
		[]task.State{task.FINISHED, task.CANCELED})

	transitions := []struct {
		from task.State
		ev   task.Event
		to   task.State
	}{
		{task.CREATED, task.PLANNED, task.RUNNING},
		{task.RUNNING, task.DONE, task.FINISHED},
		{task.RUNNING, task.PLANNED, task.RUNNING},
		{task.RUNNING, task.INIT, task.CREATED},
		{task.RUNNING, task.CANCEL, task.CANCELED},
	}
	for _, tr := range transitions {
		if err := sm.SetTransition(tr.from, tr.ev, tr.to, nil); err != nil {
			return nil, err
		}
	}
	if err := sm.Compile(maxErrorRetry); err != nil {
		return nil, err
	}

	s := &Scheduler{
		validation:     sm,
		onState:        make(map[task.State]StateHandler),
		onStateChanged: make(map[StateTransition]StateChangedFn),
		executor:       executor,
		orchestrator:   orchestrator,
	}
	s.SetOnStateFn(task.CREATED, s.handleCreated)
	s.SetOnStateFn(task.RUNNING, s.handleRunning)
	s.SetOnStateChangedFn(StateTransition{From: task.RUNNING, To: task.FINISHED}, s.onRunningFinished)
	s.SetOnStateChangedFn(StateTransition{From: task.RUNNING, To: task.CANCELED}, s.onRunningCanceled)
	s.SetOnStateChangedFn(StateTransition{From: task.RUNNING, To: task.CREATED}, s.onRunningReplanned)
	return s, nil
}

// SetOnStateFn registers (or replaces) the handler invoked while a node is
// in state.
func (s *Scheduler) SetOnStateFn(state task.State, handler StateHandler) {
	s.onState[state] = handler
}

// SetOnStateChangedFn registers (or replaces) the callback invoked exactly
// once after transition is applied.
func (s *Scheduler) SetOnStateChangedFn(transition StateTransition, fn StateChangedFn) {
	s.onStateChanged[transition] = fn
}

// Schedule drives node to a terminal state in a loop: look up the current
// state's handler, apply the event it returns,
// fire any matching on_state_changed callback, and repeat until terminal.
func (s *Scheduler) Schedule(ctx context.Context, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) error {
	for {
		if node.IsEndState(node.GetCurrentState()) {
			return nil
		}

		current := node.GetCurrentState()
		handler, ok := s.onState[current]
		if !ok {
			return &NoHandlerError{State: current}
		}

		event, err := handler(ctx, s, outQueue, node)
		if err != nil {
			return err
		}
		if event == "" {
			return nil
		}

		next, err := node.HandleEvent(ctx, event)
		if err != nil {
			return err
		}

		if fn, ok := s.onStateChanged[StateTransition{From: current, To: next}]; ok {
			fn(ctx, s, outQueue, node)
		}
	}
}

func (s *Scheduler) handleCreated(ctx context.Context, sched *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) (task.Event, error) {
	if sched.orchestrator != nil {
		if err := sched.orchestrator(ctx, outQueue, node); err != nil {
			return "", err
		}
	}
	return task.PLANNED, nil
}

func (s *Scheduler) handleRunning(ctx context.Context, sched *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) (task.Event, error) {
	children := node.GetSubTasks()
	if len(children) > 0 {
		return sched.handleRunningTree(ctx, outQueue, node, children)
	}
	return sched.handleRunningLeaf(ctx, outQueue, node)
}

func (s *Scheduler) handleRunningTree(ctx context.Context, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode, children []*task.TreeTaskNode) (task.Event, error) {
	for _, child := range children {
		if child.IsEndState(child.GetCurrentState()) {
			continue
		}
		if err := s.Schedule(ctx, outQueue, child); err != nil {
			return "", err
		}
	}

	anyCanceled := false
	outputs := make([]string, 0, len(children))
	for _, child := range node.GetSubTasks() {
		if child.GetCurrentState() == task.CANCELED {
			anyCanceled = true
			continue
		}
		if out := child.GetOutput(); out != nil {
			outputs = append(outputs, *out)
		}
	}

	if anyCanceled {
		node.SetError("a child task was canceled")
		if node.RemainingCreatedRevisits() <= 0 {
			return task.CANCEL, nil
		}
		return task.INIT, nil
	}

	node.SetOutput(strings.Join(outputs, "\n"))
	return task.DONE, nil
}

func (s *Scheduler) handleRunningLeaf(ctx context.Context, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) (task.Event, error) {
	err := s.executor(ctx, outQueue, node)
	if err == nil {
		return task.DONE, nil
	}
	node.SetError(err.Error())
	if IsUnrecoverable(err) {
		return task.CANCEL, nil
	}
	return task.PLANNED, nil
}

func (s *Scheduler) onRunningFinished(ctx context.Context, _ *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) {
	node.CleanError()
	for _, child := range node.GetSubTasks() {
		child.RemoveParent()
	}
	_ = outQueue.Put(ctx, model.NewTextMessage(model.RoleSystem, fmt.Sprintf("task %q finished", node.GetTitle())))
}

func (s *Scheduler) onRunningCanceled(ctx context.Context, _ *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) {
	cancelDescendants(ctx, node)
	_ = outQueue.Put(ctx, model.NewTextMessage(model.RoleSystem, fmt.Sprintf("task %q canceled", node.GetTitle())))
}

// cancelDescendants applies CANCEL depth-first to every non-terminal
// descendant of node. Errors from HandleEvent are swallowed: a descendant
// already mid-transition or otherwise unable to accept CANCEL should not
// block canceling its siblings.
func cancelDescendants(ctx context.Context, node *task.TreeTaskNode) {
	for _, child := range node.GetSubTasks() {
		if !child.IsEndState(child.GetCurrentState()) {
			_, _ = child.HandleEvent(ctx, task.CANCEL)
		}
		cancelDescendants(ctx, child)
	}
}

func (s *Scheduler) onRunningReplanned(ctx context.Context, _ *Scheduler, outQueue *queue.Queue[model.Message], node *task.TreeTaskNode) {
	for _, child := range node.GetSubTasks() {
		child.RemoveParent()
	}
	node.CleanError()
}
