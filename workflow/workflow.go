// Package workflow provides Workflow, the self-driving state machine that
// carries one Task through a single attempt's inner stages (observe, think,
// act, and whatever else a particular stage chain needs) without the
// Scheduler knowing anything about those stages.
package workflow

import (
	"context"
	"fmt"

	"github.com/loomwork/loomwork/machine"
	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

// ActionFn runs while the workflow is in a given stage. It receives the
// workflow itself (so it can read prompts/observe-fns/labels for its own
// stage), the shared output queue, and the task being advanced, and returns
// the event that should drive the stage transition.
type ActionFn[S comparable, E comparable] func(ctx context.Context, wf *Workflow[S, E], outQueue *queue.Queue[model.Message], t *task.Task) (E, error)

// ObserveFn projects a task's state into the message list an LLM call
// should see, overriding Agent's default observation for one stage.
type ObserveFn func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) ([]model.Message, error)

// Transition is one edge in a Workflow's stage graph.
type Transition[S comparable, E comparable] struct {
	From  S
	Event E
	To    S
}

// Config bundles the arguments New needs to build a Workflow.
type Config[S comparable, E comparable] struct {
	States      []S
	Initial     S
	EndStates   []S
	Transitions []Transition[S, E]
	EventChain  []E

	Actions    map[S]ActionFn[S, E]
	Prompts    map[S]string
	ObserveFns map[S]ObserveFn

	CompletionConfig model.CompletionConfig
	Labels           map[string]string
	EndWorkflowTool  *string
}

// Workflow is a compiled stage chain an Agent drives through one Task
// attempt. It specializes machine.StateMachine[S,E] with per-stage actions,
// prompts, and observation overrides.
type Workflow[S comparable, E comparable] struct {
	*machine.StateMachine[S, E]

	eventChain []E
	actions    map[S]ActionFn[S, E]
	prompts    map[S]string
	observeFns map[S]ObserveFn

	completionConfig model.CompletionConfig
	labels           map[string]string
	endWorkflowTool  *string
}

// New constructs an uncompiled Workflow from cfg. Compile must be called
// before Run.
func New[S comparable, E comparable](cfg Config[S, E]) *Workflow[S, E] {
	sm := machine.New[S, E](cfg.Initial, cfg.States, cfg.EndStates)
	for _, tr := range cfg.Transitions {
		if err := sm.SetTransition(tr.From, tr.Event, tr.To, nil); err != nil {
			panic("workflow: " + err.Error())
		}
	}

	return &Workflow[S, E]{
		StateMachine:     sm,
		eventChain:       cfg.EventChain,
		actions:          cfg.Actions,
		prompts:          cfg.Prompts,
		observeFns:       cfg.ObserveFns,
		completionConfig: cfg.CompletionConfig,
		labels:           cfg.Labels,
		endWorkflowTool:  cfg.EndWorkflowTool,
	}
}

// ChainError reports that driving eventChain from the initial state does
// not reach an end state, either because some event along the way has no
// registered transition or because the chain's final stage isn't terminal.
type ChainError[S any, E any] struct {
	From     S
	Event    E
	NoEdge   bool
	FinalNot S
}

func (e *ChainError[S, E]) Error() string {
	if e.NoEdge {
		return fmt.Sprintf("workflow: event chain has no transition from %v on %v", e.From, e.Event)
	}
	return fmt.Sprintf("workflow: event chain ends at non-terminal stage %v", e.FinalNot)
}

// Compile inherits StateMachine's reachability checks and additionally
// drives eventChain from the initial state using Peek (a pure lookup, no
// mutation) to confirm it reaches an end state. maxRevisit is the per-stage
// revisit budget, same meaning as machine.Compile's argument.
func (w *Workflow[S, E]) Compile(maxRevisit int) error {
	if err := w.StateMachine.Compile(maxRevisit); err != nil {
		return err
	}

	cur := w.StateMachine.GetCurrentState()
	for _, ev := range w.eventChain {
		next, ok := w.StateMachine.Peek(cur, ev)
		if !ok {
			return &ChainError[S, E]{From: cur, Event: ev, NoEdge: true}
		}
		cur = next
	}
	if !w.StateMachine.IsEndState(cur) {
		return &ChainError[S, E]{FinalNot: cur}
	}
	return nil
}

// Run self-drives the workflow: repeatedly executes the current stage's
// action, applies the event it returns, and continues until the resulting
// stage is terminal. It does not touch t's lifecycle state; actions mutate
// t.GetContext(task.RUNNING) via Agent operations.
func (w *Workflow[S, E]) Run(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) (S, error) {
	var zero S
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		cur := w.GetCurrentState()
		action, ok := w.actions[cur]
		if !ok {
			return zero, fmt.Errorf("workflow: no action registered for stage %v", cur)
		}

		event, err := action(ctx, w, outQueue, t)
		if err != nil {
			return zero, err
		}

		next, err := w.HandleEvent(ctx, event)
		if err != nil {
			return zero, err
		}
		if w.IsEndState(next) {
			return next, nil
		}
	}
}

// GetPrompt returns the prompt registered for stage s, or "" if none was
// configured.
func (w *Workflow[S, E]) GetPrompt(s S) string { return w.prompts[s] }

// GetObserveFn returns the custom observation override for stage s, if any.
func (w *Workflow[S, E]) GetObserveFn(s S) (ObserveFn, bool) {
	fn, ok := w.observeFns[s]
	return fn, ok
}

// GetCompletionConfig returns the workflow's LLM completion configuration.
func (w *Workflow[S, E]) GetCompletionConfig() model.CompletionConfig { return w.completionConfig }

// GetLabels returns the workflow's free-form labels.
func (w *Workflow[S, E]) GetLabels() map[string]string { return w.labels }

// EndWorkflowTool returns the pseudo-tool name that, when invoked by the
// LLM, signals graceful termination, and whether one was configured.
func (w *Workflow[S, E]) EndWorkflowTool() (string, bool) {
	if w.endWorkflowTool == nil {
		return "", false
	}
	return *w.endWorkflowTool, true
}
