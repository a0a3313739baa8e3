package workflow

import (
	"dubber/internal/stage"
	"dubber/internal/store"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
// Download and Extract run for every video; Chunks and Combine apply to
// chunked videos, the Transcribe..Mux handlers to linear ones. Finalize runs
// last in both modes.
type StageSet struct {
	Download stage.Handler
	Extract  stage.Handler

	Chunks  stage.Handler
	Combine stage.Handler

	Transcribe stage.Handler
	Translate  stage.Handler
	Synthesize stage.Handler
	Mix        stage.Handler
	Mux        stage.Handler

	Finalize stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      store.Status
	processingStatus store.Status
	doneStatus       store.Status
	failureStatus    store.Status
}

type stageTable struct {
	stages  []pipelineStage
	byStart map[store.Status]pipelineStage
}

func (t *stageTable) finalize() {
	if t == nil {
		return
	}
	t.byStart = make(map[store.Status]pipelineStage, len(t.stages))
	for _, stg := range t.stages {
		t.byStart[stg.startStatus] = stg
	}
}

func (t *stageTable) stageForStatus(status store.Status) (pipelineStage, bool) {
	if t == nil {
		return pipelineStage{}, false
	}
	stg, ok := t.byStart[status]
	return stg, ok
}
