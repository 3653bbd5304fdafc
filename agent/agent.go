// Package agent provides Agent, which hosts a Workflow and the three
// observe/think/act primitives workflow actions call, wrapped in eight
// ordered hook chains.
package agent

import (
	"context"
	"fmt"

	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
	"github.com/loomwork/loomwork/toolsvc"
	"github.com/loomwork/loomwork/workflow"
)

// Agent wraps one Workflow[S,E] and the LLM/tool collaborators its
// primitives route to. Fields are set at construction — there is no
// package-level mutable state.
type Agent[S comparable, E comparable] struct {
	llms  map[string]model.ChatModel
	tools toolsvc.ToolService
	wf    *workflow.Workflow[S, E]

	preRunOnce  []RunOnceHook
	postRunOnce []RunOnceHook
	preObserve  []ObserveHook
	postObserve []ObservedHook
	preThink    []ThinkHook
	postThink   []ReplyHook
	preAct      []ActHook
	postAct     []ActResultHook
}

// New constructs an Agent over a compiled Workflow. llms maps the names an
// ActionFn may pass to Think against the ChatModel that should handle them.
func New[S comparable, E comparable](llms map[string]model.ChatModel, tools toolsvc.ToolService, wf *workflow.Workflow[S, E]) *Agent[S, E] {
	return &Agent[S, E]{llms: llms, tools: tools, wf: wf}
}

// Workflow returns the hosted Workflow, for ActionFns that need to read its
// prompts, labels, or end-workflow-tool configuration.
func (a *Agent[S, E]) Workflow() *workflow.Workflow[S, E] { return a.wf }

// AddPreRunOnce registers a callback to the pre_run_once chain, run in
// registration order before the workflow resets and runs.
func (a *Agent[S, E]) AddPreRunOnce(h RunOnceHook) { a.preRunOnce = append(a.preRunOnce, h) }

// AddPostRunOnce registers a callback to the post_run_once chain, run after
// the workflow reaches a terminal stage.
func (a *Agent[S, E]) AddPostRunOnce(h RunOnceHook) { a.postRunOnce = append(a.postRunOnce, h) }

// AddPreObserve registers a callback to the pre_observe chain.
func (a *Agent[S, E]) AddPreObserve(h ObserveHook) { a.preObserve = append(a.preObserve, h) }

// AddPostObserve registers a callback to the post_observe chain.
func (a *Agent[S, E]) AddPostObserve(h ObservedHook) { a.postObserve = append(a.postObserve, h) }

// AddPreThink registers a callback to the pre_think chain.
func (a *Agent[S, E]) AddPreThink(h ThinkHook) { a.preThink = append(a.preThink, h) }

// AddPostThink registers a callback to the post_think chain.
func (a *Agent[S, E]) AddPostThink(h ReplyHook) { a.postThink = append(a.postThink, h) }

// AddPreAct registers a callback to the pre_act chain.
func (a *Agent[S, E]) AddPreAct(h ActHook) { a.preAct = append(a.preAct, h) }

// AddPostAct registers a callback to the post_act chain.
func (a *Agent[S, E]) AddPostAct(h ActResultHook) { a.postAct = append(a.postAct, h) }

// Observe gathers the conversation context to feed the LLM. When
// observeFn is nil, the default is a snapshot of t's RUNNING context buffer
// with the task's protocol prepended as a leading system message (when
// non-empty).
//
// If pre_observe or post_observe interferes, Observe does not propagate the
// raw *InterferenceError: it appends a synthetic, error-flagged user message
// explaining the interference to t's RUNNING context and returns it with a
// nil error (for pre_observe, that message alone; for post_observe, the
// observed messages with that message appended), so the workflow can carry
// on and let Think react to it.
func (a *Agent[S, E]) Observe(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task, observeFn workflow.ObserveFn) ([]model.Message, error) {
	if err := runObserveChain(ctx, a.preObserve, outQueue, t); err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			t.GetContext(task.RUNNING).Append(msg)
			return []model.Message{msg}, nil
		}
		return nil, err
	}

	var observed []model.Message
	if observeFn != nil {
		var err error
		observed, err = observeFn(ctx, outQueue, t)
		if err != nil {
			return nil, err
		}
	} else {
		observed = defaultObserve(t)
	}

	wrapped := &ObservedMessages{Messages: observed}
	if err := runObservedChain(ctx, a.postObserve, outQueue, t, wrapped); err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			t.GetContext(task.RUNNING).Append(msg)
			return append(wrapped.Messages, msg), nil
		}
		return nil, err
	}
	return wrapped.Messages, nil
}

func defaultObserve(t *task.Task) []model.Message {
	snapshot := t.GetContext(task.RUNNING).Snapshot()
	if t.GetProtocol() == "" {
		return snapshot
	}
	out := make([]model.Message, 0, len(snapshot)+1)
	out = append(out, model.NewTextMessage(model.RoleSystem, t.GetProtocol()))
	out = append(out, snapshot...)
	return out
}

// Think routes to the LLM named llmName, invokes its Completion, and
// returns the assistant's reply. The reply is pushed onto outQueue before
// returning.
//
// If pre_think or post_think interferes, Think skips the LLM call (or
// discards its result) and returns a synthetic, error-flagged message in
// place of the reply instead of propagating *InterferenceError.
func (a *Agent[S, E]) Think(ctx context.Context, outQueue *queue.Queue[model.Message], llmName string, observed []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	observed, err := runThinkChain(ctx, a.preThink, outQueue, observed)
	if err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			if perr := outQueue.Put(ctx, msg); perr != nil {
				return model.Message{}, perr
			}
			return msg, nil
		}
		return model.Message{}, err
	}

	llm, ok := a.llms[llmName]
	if !ok {
		return model.Message{}, fmt.Errorf("agent: no LLM registered under name %q", llmName)
	}

	reply, err := llm.Completion(ctx, observed, cfg)
	if err != nil {
		return model.Message{}, err
	}

	reply, err = runReplyChain(ctx, a.postThink, outQueue, observed, reply)
	if err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			if perr := outQueue.Put(ctx, msg); perr != nil {
				return model.Message{}, perr
			}
			return msg, nil
		}
		return model.Message{}, err
	}

	if err := outQueue.Put(ctx, reply); err != nil {
		return model.Message{}, err
	}
	return reply, nil
}

// Act invokes one tool call via the tool service. If toolCall.Name matches
// the hosted Workflow's EndWorkflowTool, the tool service is not actually
// called; a synthetic success result is produced instead, signaling to the
// caller (the ActionFn driving this stage) that the run is ready to
// terminate.
//
// If pre_act or post_act interferes, the tool is not called (or its result
// is discarded) and Act returns a TOOL message carrying the interference
// reason with IsError set, instead of propagating *InterferenceError:
// HumanInterfere from these chains reaches the caller as a regular
// tool-error result, never as an exception.
func (a *Agent[S, E]) Act(ctx context.Context, outQueue *queue.Queue[model.Message], toolCall model.ToolCallRequest, t *task.Task) (model.Message, error) {
	if err := runActChain(ctx, a.preAct, outQueue, t); err != nil {
		if msg, ok := interferenceMessage(err, toolCall.ID); ok {
			if perr := outQueue.Put(ctx, msg); perr != nil {
				return model.Message{}, perr
			}
			return msg, nil
		}
		return model.Message{}, err
	}

	var result model.Message
	if name, ok := a.wf.EndWorkflowTool(); ok && name == toolCall.Name {
		result = model.Message{
			Role:       model.RoleTool,
			Content:    []model.Block{model.TextBlock("workflow signaled completion")},
			ToolCallID: toolCall.ID,
		}
	} else {
		var err error
		result, err = a.tools.Call(ctx, toolCall.Name, toolCall.Args, toolCall.ID)
		if err != nil {
			return model.Message{}, err
		}
	}

	if err := runActResultChain(ctx, a.postAct, outQueue, t, result); err != nil {
		if msg, ok := interferenceMessage(err, toolCall.ID); ok {
			if perr := outQueue.Put(ctx, msg); perr != nil {
				return model.Message{}, perr
			}
			return msg, nil
		}
		return model.Message{}, err
	}
	if err := outQueue.Put(ctx, result); err != nil {
		return model.Message{}, err
	}
	return result, nil
}

// RunOnce is the canonical execution entry a Scheduler's on-state handler
// invokes: run pre_run_once, reset the workflow to its initial stage, run
// it to completion, run post_run_once, and return the terminal stage.
//
// If pre_run_once or post_run_once interferes, RunOnce does not propagate
// *InterferenceError: it records a synthetic error message on t's RUNNING
// context, marks t with SetError, and returns the zero stage with a nil
// error, the same recoverable shape a caught tool error leaves behind for
// the scheduler's executor to retry.
func (a *Agent[S, E]) RunOnce(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) (S, error) {
	var zero S
	if err := runRunOnceChain(ctx, "pre_run_once", a.preRunOnce, outQueue, t); err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			t.GetContext(task.RUNNING).Append(msg)
			t.SetError(msg.Text())
			return zero, nil
		}
		return zero, err
	}

	a.wf.Reset()
	terminal, runErr := a.wf.Run(ctx, outQueue, t)

	if err := runRunOnceChain(ctx, "post_run_once", a.postRunOnce, outQueue, t); err != nil {
		if msg, ok := interferenceMessage(err, ""); ok {
			t.GetContext(task.RUNNING).Append(msg)
			t.SetError(msg.Text())
			return zero, nil
		}
		if runErr != nil {
			return zero, runErr
		}
		return zero, err
	}
	if runErr != nil {
		return zero, runErr
	}
	return terminal, nil
}
