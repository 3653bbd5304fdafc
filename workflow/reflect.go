package workflow

import "github.com/loomwork/loomwork/model"

// ReflectStage enumerates the stages of a draft/critique/revise self-review
// loop: produce an answer, critique it, revise it, and decide whether
// another pass is warranted.
type ReflectStage string

const (
	ReflectDraft    ReflectStage = "DRAFT"
	ReflectCritique ReflectStage = "CRITIQUE"
	ReflectRevise   ReflectStage = "REVISE"
	ReflectDone     ReflectStage = "DONE"
)

// ReflectEvent drives ReflectStage transitions.
type ReflectEvent string

const (
	// ReflectProceed advances Draft->Critique->Revise.
	ReflectProceed ReflectEvent = "PROCEED"
	// ReflectAgain loops Revise->Draft for another pass.
	ReflectAgain ReflectEvent = "AGAIN"
	// ReflectAccept ends the loop, Revise->Done.
	ReflectAccept ReflectEvent = "ACCEPT"
)

// ReflectConfig bundles the caller-supplied behavior NewReflect wires into
// the fixed Draft->Critique->Revise transition table.
type ReflectConfig struct {
	Actions          map[ReflectStage]ActionFn[ReflectStage, ReflectEvent]
	Prompts          map[ReflectStage]string
	ObserveFns       map[ReflectStage]ObserveFn
	CompletionConfig model.CompletionConfig
	Labels           map[string]string
	EndWorkflowTool  *string
	MaxRevisit       int
}

// NewReflect builds and compiles a Workflow over ReflectStage/ReflectEvent
// with the transition table Draft->Critique->Revise->{Draft via Again, Done
// via Accept} pre-registered, leaving only the per-stage behavior to the
// caller.
func NewReflect(cfg ReflectConfig) (*Workflow[ReflectStage, ReflectEvent], error) {
	wf := New(Config[ReflectStage, ReflectEvent]{
		States:    []ReflectStage{ReflectDraft, ReflectCritique, ReflectRevise, ReflectDone},
		Initial:   ReflectDraft,
		EndStates: []ReflectStage{ReflectDone},
		Transitions: []Transition[ReflectStage, ReflectEvent]{
			{From: ReflectDraft, Event: ReflectProceed, To: ReflectCritique},
			{From: ReflectCritique, Event: ReflectProceed, To: ReflectRevise},
			{From: ReflectRevise, Event: ReflectAgain, To: ReflectDraft},
			{From: ReflectRevise, Event: ReflectAccept, To: ReflectDone},
		},
		EventChain:       []ReflectEvent{ReflectProceed, ReflectProceed, ReflectAccept},
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
