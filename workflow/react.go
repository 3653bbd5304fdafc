package workflow

import "github.com/loomwork/loomwork/model"

// ReActStage enumerates the stages of the classic observe/think/act/reflect
// loop: gather context, reason about it, invoke a tool, then decide whether
// another pass is warranted.
type ReActStage string

const (
	ReActObserve ReActStage = "OBSERVE"
	ReActThink   ReActStage = "THINK"
	ReActAct     ReActStage = "ACT"
	ReActReflect ReActStage = "REFLECT"
	ReActDone    ReActStage = "DONE"
)

// ReActEvent drives ReActStage transitions.
type ReActEvent string

const (
	// ReActProceed advances Observe->Think->Act->Reflect.
	ReActProceed ReActEvent = "PROCEED"
	// ReActContinue loops Reflect->Observe for another pass.
	ReActContinue ReActEvent = "CONTINUE"
	// ReActFinish ends the loop, Reflect->Done.
	ReActFinish ReActEvent = "FINISH"
)

// ReActConfig bundles the caller-supplied behavior NewReAct wires into the
// fixed Observe->Think->Act->Reflect transition table.
type ReActConfig struct {
	Actions          map[ReActStage]ActionFn[ReActStage, ReActEvent]
	Prompts          map[ReActStage]string
	ObserveFns       map[ReActStage]ObserveFn
	CompletionConfig model.CompletionConfig
	Labels           map[string]string
	EndWorkflowTool  *string
	MaxRevisit       int
}

// NewReAct builds and compiles a Workflow over ReActStage/ReActEvent with
// the transition table Observe->Think->Act->Reflect->{Observe via Continue,
// Done via Finish} pre-registered, leaving only the per-stage behavior to
// the caller.
func NewReAct(cfg ReActConfig) (*Workflow[ReActStage, ReActEvent], error) {
	wf := New(Config[ReActStage, ReActEvent]{
		States:    []ReActStage{ReActObserve, ReActThink, ReActAct, ReActReflect, ReActDone},
		Initial:   ReActObserve,
		EndStates: []ReActStage{ReActDone},
		Transitions: []Transition[ReActStage, ReActEvent]{
			{From: ReActObserve, Event: ReActProceed, To: ReActThink},
			{From: ReActThink, Event: ReActProceed, To: ReActAct},
			{From: ReActAct, Event: ReActProceed, To: ReActReflect},
			{From: ReActReflect, Event: ReActContinue, To: ReActObserve},
			{From: ReActReflect, Event: ReActFinish, To: ReActDone},
		},
		EventChain:       []ReActEvent{ReActProceed, ReActProceed, ReActProceed, ReActFinish},
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
