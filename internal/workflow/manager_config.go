package workflow

import "dubber/internal/store"

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	shared := make([]pipelineStage, 0, 2)
	if set.Download != nil {
		shared = append(shared, pipelineStage{
			name:             "download",
			handler:          set.Download,
			startStatus:      store.StatusPending,
			processingStatus: store.StatusDownloading,
			doneStatus:       store.StatusDownloaded,
			failureStatus:    store.StatusDownloadFailed,
		})
	}
	if set.Extract != nil {
		shared = append(shared, pipelineStage{
			name:             "extract",
			handler:          set.Extract,
			startStatus:      store.StatusDownloaded,
			processingStatus: store.StatusExtractingAudio,
			doneStatus:       store.StatusAudioExtracted,
			failureStatus:    store.StatusExtractFailed,
		})
	}

	chunked := &stageTable{stages: append([]pipelineStage(nil), shared...)}
	if set.Chunks != nil {
		chunked.stages = append(chunked.stages, pipelineStage{
			name:             "chunks",
			handler:          set.Chunks,
			startStatus:      store.StatusAudioExtracted,
			processingStatus: store.StatusProcessingChunks,
			doneStatus:       store.StatusChunksProcessed,
			failureStatus:    store.StatusChunksFailed,
		})
	}
	if set.Combine != nil {
		chunked.stages = append(chunked.stages, pipelineStage{
			name:             "combine",
			handler:          set.Combine,
			startStatus:      store.StatusChunksProcessed,
			processingStatus: store.StatusCombiningChunks,
			doneStatus:       store.StatusDubbedComplete,
			failureStatus:    store.StatusCombineFailed,
		})
	}

	linear := &stageTable{stages: append([]pipelineStage(nil), shared...)}
	if set.Transcribe != nil {
		linear.stages = append(linear.stages, pipelineStage{
			name:             "transcribe",
			handler:          set.Transcribe,
			startStatus:      store.StatusAudioExtracted,
			processingStatus: store.StatusTranscribing,
			doneStatus:       store.StatusTranscribed,
			failureStatus:    store.StatusTranscriptionFailed,
		})
	}
	if set.Translate != nil {
		linear.stages = append(linear.stages, pipelineStage{
			name:             "translate",
			handler:          set.Translate,
			startStatus:      store.StatusTranscribed,
			processingStatus: store.StatusTranslating,
			doneStatus:       store.StatusTranslated,
			failureStatus:    store.StatusTranslationFailed,
		})
	}
	if set.Synthesize != nil {
		linear.stages = append(linear.stages, pipelineStage{
			name:             "synthesize",
			handler:          set.Synthesize,
			startStatus:      store.StatusTranslated,
			processingStatus: store.StatusSynthesizing,
			doneStatus:       store.StatusTTSGenerated,
			failureStatus:    store.StatusTTSFailed,
		})
	}
	if set.Mix != nil {
		linear.stages = append(linear.stages, pipelineStage{
			name:             "mix",
			handler:          set.Mix,
			startStatus:      store.StatusTTSGenerated,
			processingStatus: store.StatusMixing,
			doneStatus:       store.StatusMixed,
			failureStatus:    store.StatusMixFailed,
		})
	}
	if set.Mux != nil {
		linear.stages = append(linear.stages, pipelineStage{
			name:             "mux",
			handler:          set.Mux,
			startStatus:      store.StatusMixed,
			processingStatus: store.StatusMuxing,
			doneStatus:       store.StatusDubbedComplete,
			failureStatus:    store.StatusMuxFailed,
		})
	}

	if set.Finalize != nil {
		finalize := pipelineStage{
			name:             "finalize",
			handler:          set.Finalize,
			startStatus:      store.StatusDubbedComplete,
			processingStatus: store.StatusLipsyncProcessing,
			doneStatus:       store.StatusCompleted,
			failureStatus:    store.StatusLipsyncFailed,
		}
		chunked.stages = append(chunked.stages, finalize)
		linear.stages = append(linear.stages, finalize)
	}

	chunked.finalize()
	linear.finalize()

	watch := make([]store.Status, 0, len(chunked.stages)+len(linear.stages))
	seen := make(map[store.Status]struct{})
	for _, table := range []*stageTable{chunked, linear} {
		for _, stg := range table.stages {
			if _, ok := seen[stg.startStatus]; ok {
				continue
			}
			seen[stg.startStatus] = struct{}{}
			watch = append(watch, stg.startStatus)
		}
	}

	m.mu.Lock()
	m.tables = map[store.Mode]*stageTable{
		store.ModeChunked: chunked,
		store.ModeLinear:  linear,
	}
	m.watch = watch
	m.mu.Unlock()
}
