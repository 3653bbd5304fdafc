package workflow

import (
	"context"
	"testing"

	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

func TestNewReflect_DrivesOnePassToDone(t *testing.T) {
	actions := map[ReflectStage]ActionFn[ReflectStage, ReflectEvent]{
		ReflectDraft: func(_ context.Context, _ *Workflow[ReflectStage, ReflectEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReflectEvent, error) {
			return ReflectProceed, nil
		},
		ReflectCritique: func(_ context.Context, _ *Workflow[ReflectStage, ReflectEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReflectEvent, error) {
			return ReflectProceed, nil
		},
		ReflectRevise: func(_ context.Context, _ *Workflow[ReflectStage, ReflectEvent], _ *queue.Queue[model.Message], _ *task.Task) (ReflectEvent, error) {
			return ReflectAccept, nil
		},
	}

	wf, err := NewReflect(ReflectConfig{Actions: actions})
	if err != nil {
		t.Fatalf("NewReflect: %v", err)
	}

	q := queue.New[model.Message](4)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	final, err := wf.Run(context.Background(), q, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final != ReflectDone {
		t.Fatalf("final = %v, want Done", final)
	}
}

func TestNewReflect_MissingActionFailsAtRun(t *testing.T) {
	wf, err := NewReflect(ReflectConfig{})
	if err != nil {
		t.Fatalf("NewReflect: %v", err)
	}
	q := queue.New[model.Message](4)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	if _, err := wf.Run(context.Background(), q, tk); err == nil {
		t.Fatal("expected error for missing action")
	}
}
