package workflow

import (
	"context"
	"testing"

	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

func TestNewReAct_DrivesOnePassToDone(t *testing.T) {
	var seen []ReActStage
	step := func(s ReActStage, next ReActEvent) ActionFn[ReActStage, ReActEvent] {
		return func(_ context.Context, _ *Workflow[ReActStage, ReActEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReActEvent, error) {
			seen = append(seen, s)
			return next, nil
		}
	}

	wf, err := NewReAct(ReActConfig{
		Actions: map[ReActStage]ActionFn[ReActStage, ReActEvent]{
			ReActObserve: step(ReActObserve, ReActProceed),
			ReActThink:   step(ReActThink, ReActProceed),
			ReActAct:     step(ReActAct, ReActProceed),
			ReActReflect: step(ReActReflect, ReActFinish),
		},
	})
	if err != nil {
		t.Fatalf("NewReAct: %v", err)
	}

	q := queue.New[model.Message](4)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	final, err := wf.Run(context.Background(), q, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final != ReActDone {
		t.Fatalf("final = %v, want Done", final)
	}
	want := []ReActStage{ReActObserve, ReActThink, ReActAct, ReActReflect}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestNewReAct_LoopsOnContinue(t *testing.T) {
	passes := 0
	actions := map[ReActStage]ActionFn[ReActStage, ReActEvent]{
		ReActObserve: func(_ context.Context, _ *Workflow[ReActStage, ReActEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReActEvent, error) {
			return ReActProceed, nil
		},
		ReActThink: func(_ context.Context, _ *Workflow[ReActStage, ReActEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReActEvent, error) {
			return ReActProceed, nil
		},
		ReActAct: func(_ context.Context, _ *Workflow[ReActStage, ReActEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReActEvent, error) {
			return ReActProceed, nil
		},
		ReActReflect: func(_ context.Context, _ *Workflow[ReActStage, ReActEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReActEvent, error) {
			passes++
			if passes < 2 {
				return ReActContinue, nil
			}
			return ReActFinish, nil
		},
	}

	wf, err := NewReAct(ReActConfig{Actions: actions, MaxRevisit: 1})
	if err != nil {
		t.Fatalf("NewReAct: %v", err)
	}

	q := queue.New[model.Message](8)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	final, err := wf.Run(context.Background(), q, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final != ReActDone {
		t.Fatalf("final = %v, want Done", final)
	}
	if passes != 2 {
		t.Fatalf("passes = %d, want 2", passes)
	}
}
