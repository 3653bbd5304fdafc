package workflow

import (
	"context"
	"testing"

	"github.com/loomwork/loomwork/model"
	"github.com/loomwork/loomwork/queue"
	"github.com/loomwork/loomwork/task"
)

func TestNewOrchestrate_DrivesOnePassToDone(t *testing.T) {
	actions := map[OrchestrateStage]ActionFn[OrchestrateStage, OrchestrateEvent]{
		OrchestratePlan: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			return OrchestrateProceed, nil
		},
		OrchestrateDispatch: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			return OrchestrateProceed, nil
		},
		OrchestrateCollect: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			return OrchestrateFinish, nil
		},
	}

	wf, err := NewOrchestrate(OrchestrateConfig{Actions: actions})
	if err != nil {
		t.Fatalf("NewOrchestrate: %v", err)
	}

	q := queue.New[model.Message](4)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	final, err := wf.Run(context.Background(), q, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final != OrchestrateDone {
		t.Fatalf("final = %v, want Done", final)
	}
}

func TestNewOrchestrate_ReplanLoop(t *testing.T) {
	attempts := 0
	actions := map[OrchestrateStage]ActionFn[OrchestrateStage, OrchestrateEvent]{
		OrchestratePlan: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			return OrchestrateProceed, nil
		},
		OrchestrateDispatch: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			return OrchestrateProceed, nil
		},
		OrchestrateCollect: func(_ context.Context, _ *Workflow[OrchestrateStage, OrchestrateEvent], _ *queue.Queue[model.Message], _ *task.Task) (OrchestrateEvent, error) {
			attempts++
			if attempts < 2 {
				return OrchestrateReplan, nil
			}
			return OrchestrateFinish, nil
		},
	}

	wf, err := NewOrchestrate(OrchestrateConfig{Actions: actions, MaxRevisit: 1})
	if err != nil {
		t.Fatalf("NewOrchestrate: %v", err)
	}

	q := queue.New[model.Message](8)
	tk := task.New("t", "qa", task.Config{MaxErrorRetry: 1})
	final, err := wf.Run(context.Background(), q, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final != OrchestrateDone {
		t.Fatalf("final = %v, want Done", final)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}
