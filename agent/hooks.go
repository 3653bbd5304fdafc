package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

// HookOutcome is a hook's typed replacement for raising an exception to
// request human intervention. A zero HookOutcome means "continue as
// normal"; Interfere marks a chain for early termination.
type HookOutcome struct {
	interfered bool
	reason     string
}

// Continue is the default, non-interfering outcome.
func Continue() HookOutcome { return HookOutcome{} }

// Interfere requests that the Agent stop and surface reason for out-of-band
// human approval, instead of running the remainder of the current chain.
func Interfere(reason string) HookOutcome { return HookOutcome{interfered: true, reason: reason} }

// InterferenceError is returned by a hook chain runner when a hook calls
// Interfere. It carries which chain and reason; the Agent primitives
// (Observe, Think, Act, RunOnce) do not return it, but convert it into a
// synthetic error-flagged message via interferenceMessage.
type InterferenceError struct {
	Chain  string
	Reason string
}

func (e *InterferenceError) Error() string {
	return fmt.Sprintf("agent: %s hook requested human interference: %s", e.Chain, e.Reason)
}

// interferenceMessage converts err into the synthetic error-flagged message
// an Interfere outcome produces, if err is an *InterferenceError; ok is
// false for any other error, which the caller must propagate unmodified.
// toolCallID ties the message back to the tool call that was halted
// (pre_act/post_act); it is empty for the other chains, which produce a
// plain user-role note instead.
func interferenceMessage(err error, toolCallID string) (msg model.Message, ok bool) {
	var ie *InterferenceError
	if !errors.As(err, &ie) {
		return model.Message{}, false
	}
	role := model.RoleUser
	if toolCallID != "" {
		role = model.RoleTool
	}
	return model.Message{
		Role:       role,
		Content:    []model.Block{model.TextBlock(ie.Reason)},
		ToolCallID: toolCallID,
		IsError:    true,
	}, true
}

// ObservedMessages is the out-parameter post_observe hooks mutate in place,
// per the fixed pointer-mutation convention for that one hook.
type ObservedMessages struct {
	Messages []model.Message
}

// RunOnceHook backs pre_run_once and post_run_once.
type RunOnceHook func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) (HookOutcome, error)

// ObserveHook backs pre_observe.
type ObserveHook func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) (HookOutcome, error)

// ObservedHook backs post_observe; observed is mutated in place.
type ObservedHook func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task, observed *ObservedMessages) (HookOutcome, error)

// ThinkHook backs pre_think. It may return a replacement message list (e.g.
// with sensitive content masked); a nil slice means "leave observed
// unchanged".
type ThinkHook func(ctx context.Context, outQueue *queue.Queue[model.Message], observed []model.Message) ([]model.Message, HookOutcome, error)

// ReplyHook backs post_think. It may return a replacement reply (e.g. with
// masks restored).
type ReplyHook func(ctx context.Context, outQueue *queue.Queue[model.Message], observed []model.Message, reply model.Message) (model.Message, HookOutcome, error)

// ActHook backs pre_act.
type ActHook func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task) (HookOutcome, error)

// ActResultHook backs post_act.
type ActResultHook func(ctx context.Context, outQueue *queue.Queue[model.Message], t *task.Task, toolResult model.Message) (HookOutcome, error)

func runRunOnceChain(ctx context.Context, chain string, hooks []RunOnceHook, outQueue *queue.Queue[model.Message], t *task.Task) error {
	for _, h := range hooks {
		outcome, err := h(ctx, outQueue, t)
		if err != nil {
			return err
		}
		if outcome.interfered {
			return &InterferenceError{Chain: chain, Reason: outcome.reason}
		}
	}
	return nil
}

func runObserveChain(ctx context.Context, hooks []ObserveHook, outQueue *queue.Queue[model.Message], t *task.Task) error {
	for _, h := range hooks {
		outcome, err := h(ctx, outQueue, t)
		if err != nil {
			return err
		}
		if outcome.interfered {
			return &InterferenceError{Chain: "pre_observe", Reason: outcome.reason}
		}
	}
	return nil
}

func runObservedChain(ctx context.Context, hooks []ObservedHook, outQueue *queue.Queue[model.Message], t *task.Task, observed *ObservedMessages) error {
	for _, h := range hooks {
		outcome, err := h(ctx, outQueue, t, observed)
		if err != nil {
			return err
		}
		if outcome.interfered {
			return &InterferenceError{Chain: "post_observe", Reason: outcome.reason}
		}
	}
	return nil
}

func runThinkChain(ctx context.Context, hooks []ThinkHook, outQueue *queue.Queue[model.Message], observed []model.Message) ([]model.Message, error) {
	for _, h := range hooks {
		next, outcome, err := h(ctx, outQueue, observed)
		if err != nil {
			return observed, err
		}
		if outcome.interfered {
			return observed, &InterferenceError{Chain: "pre_think", Reason: outcome.reason}
		}
		if next != nil {
			observed = next
		}
	}
	return observed, nil
}

func runReplyChain(ctx context.Context, hooks []ReplyHook, outQueue *queue.Queue[model.Message], observed []model.Message, reply model.Message) (model.Message, error) {
	for _, h := range hooks {
		next, outcome, err := h(ctx, outQueue, observed, reply)
		if err != nil {
			return reply, err
		}
		if outcome.interfered {
			return reply, &InterferenceError{Chain: "post_think", Reason: outcome.reason}
		}
		reply = next
	}
	return reply, nil
}

func runActChain(ctx context.Context, hooks []ActHook, outQueue *queue.Queue[model.Message], t *task.Task) error {
	for _, h := range hooks {
		outcome, err := h(ctx, outQueue, t)
		if err != nil {
			return err
		}
		if outcome.interfered {
			return &InterferenceError{Chain: "pre_act", Reason: outcome.reason}
		}
	}
	return nil
}

func runActResultChain(ctx context.Context, hooks []ActResultHook, outQueue *queue.Queue[model.Message], t *task.Task, result model.Message) error {
	for _, h := range hooks {
		outcome, err := h(ctx, outQueue, t, result)
		if err != nil {
			return err
		}
		if outcome.interfered {
			return &InterferenceError{Chain: "post_act", Reason: outcome.reason}
		}
	}
	return nil
}
