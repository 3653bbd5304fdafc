package workflow

import "github.com/loomwork/loomwork/model"

// OrchestrateStage enumerates the stages of a tree-task orchestrator: plan
// the subtasks a task needs, dispatch them as children, then collect their
// results back into the parent's context.
type OrchestrateStage string

const (
	OrchestratePlan     OrchestrateStage = "PLAN"
	OrchestrateDispatch OrchestrateStage = "DISPATCH"
	OrchestrateCollect  OrchestrateStage = "COLLECT"
	OrchestrateDone     OrchestrateStage = "DONE"
)

// OrchestrateEvent drives OrchestrateStage transitions.
type OrchestrateEvent string

const (
	// OrchestrateProceed advances Plan->Dispatch->Collect.
	OrchestrateProceed OrchestrateEvent = "PROCEED"
	// OrchestrateReplan loops Collect->Plan when a child's result demands
	// re-planning (e.g. a child came back CANCELED).
	OrchestrateReplan OrchestrateEvent = "REPLAN"
	// OrchestrateFinish ends the loop, Collect->Done.
	OrchestrateFinish OrchestrateEvent = "FINISH"
)

// OrchestrateConfig bundles the caller-supplied behavior NewOrchestrate
// wires into the fixed Plan->Dispatch->Collect transition table.
type OrchestrateConfig struct {
	Actions          map[OrchestrateStage]ActionFn[OrchestrateStage, OrchestrateEvent]
	Prompts          map[OrchestrateStage]string
	ObserveFns       map[OrchestrateStage]ObserveFn
	CompletionConfig model.CompletionConfig
	Labels           map[string]string
	EndWorkflowTool  *string
	MaxRevisit       int
}

// NewOrchestrate builds and compiles a Workflow over
// OrchestrateStage/OrchestrateEvent with the transition table
// Plan->Dispatch->Collect->{Plan via Replan, Done via Finish}
// pre-registered, leaving only the per-stage behavior to the caller.
func NewOrchestrate(cfg OrchestrateConfig) (*Workflow[OrchestrateStage, OrchestrateEvent], error) {
	wf := New(Config[OrchestrateStage, OrchestrateEvent]{
		States:    []OrchestrateStage{OrchestratePlan, OrchestrateDispatch, OrchestrateCollect, OrchestrateDone},
		Initial:   OrchestratePlan,
		EndStates: []OrchestrateStage{OrchestrateDone},
		Transitions: []Transition[OrchestrateStage, OrchestrateEvent]{
			{From: OrchestratePlan, Event: OrchestrateProceed, To: OrchestrateDispatch},
			{From: OrchestrateDispatch, Event: OrchestrateProceed, To: OrchestrateCollect},
			{From: OrchestrateCollect, Event: OrchestrateReplan, To: OrchestratePlan},
			{From: OrchestrateCollect, Event: OrchestrateFinish, To: OrchestrateDone},
		},
		EventChain:       []OrchestrateEvent{OrchestrateProceed, OrchestrateProceed, OrchestrateFinish},
		Actions:          cfg.Actions,
		Prompts:          cfg.Prompts,
		ObserveFns:       cfg.ObserveFns,
		CompletionConfig: cfg.CompletionConfig,
		Labels:           cfg.Labels,
		EndWorkflowTool:  cfg.EndWorkflowTool,
	})
	if err := wf.Compile(cfg.MaxRevisit); err != nil {
		return nil, err
	}
	return wf, nil
}
