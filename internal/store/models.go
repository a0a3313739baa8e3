package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a video in the dubbing pipeline.
type Status string

const (
	StatusPending         Status = "pending"
	StatusDownloading     Status = "downloading"
	StatusDownloaded      Status = "downloaded"
	StatusExtractingAudio Status = "extracting_audio"
	StatusAudioExtracted  Status = "audio_extracted"

	// Chunked mode.
	StatusProcessingChunks Status = "processing_chunks"
	StatusChunksProcessed  Status = "chunks_processed"
	StatusCombiningChunks  Status = "combining_chunks"

	// Linear (whole-video) mode.
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusTranslating  Status = "translating"
	StatusTranslated   Status = "translated"
	StatusSynthesizing Status = "synthesizing"
	StatusTTSGenerated Status = "tts_generated"
	StatusMixing       Status = "mixing"
	StatusMixed        Status = "mixed"
	StatusMuxing       Status = "muxing"

	StatusDubbedComplete    Status = "dubbed_complete"
	StatusLipsyncProcessing Status = "lipsync_processing"
	StatusCompleted         Status = "completed"

	// Stage-specific failure statuses. Terminal for the attempt, resumable
	// for the video: RetryFailed maps each back to its stage start.
	StatusDownloadFailed      Status = "download_failed"
	StatusExtractFailed       Status = "extract_failed"
	StatusChunksFailed        Status = "chunks_failed"
	StatusCombineFailed       Status = "combine_failed"
	StatusTranscriptionFailed Status = "transcription_failed"
	StatusTranslationFailed   Status = "translation_failed"
	StatusTTSFailed           Status = "tts_failed"
	StatusMixFailed           Status = "mix_failed"
	StatusMuxFailed           Status = "mux_failed"
	StatusLipsyncFailed       Status = "lipsync_failed"
)

// Mode selects between the chunked fan-out pipeline and the linear
// whole-video pipeline.
type Mode string

const (
	ModeChunked Mode = "chunked"
	ModeLinear  Mode = "linear"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusDownloaded,
	StatusExtractingAudio,
	StatusAudioExtracted,
	StatusProcessingChunks,
	StatusChunksProcessed,
	StatusCombiningChunks,
	StatusTranscribing,
	StatusTranscribed,
	StatusTranslating,
	StatusTranslated,
	StatusSynthesizing,
	StatusTTSGenerated,
	StatusMixing,
	StatusMixed,
	StatusMuxing,
	StatusDubbedComplete,
	StatusLipsyncProcessing,
	StatusCompleted,
	StatusDownloadFailed,
	StatusExtractFailed,
	StatusChunksFailed,
	StatusCombineFailed,
	StatusTranscriptionFailed,
	StatusTranslationFailed,
	StatusTTSFailed,
	StatusMixFailed,
	StatusMuxFailed,
	StatusLipsyncFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// allowedFrom is the transition table: for each target status, the set of
// predecessor statuses a video may transition from. Checked once, in
// TransitionStatus; stage handlers never mutate status strings directly.
var allowedFrom = map[Status][]Status{
	StatusDownloading:     {StatusPending},
	StatusDownloaded:      {StatusDownloading},
	StatusExtractingAudio: {StatusDownloaded},
	StatusAudioExtracted:  {StatusExtractingAudio},

	StatusProcessingChunks: {StatusAudioExtracted},
	StatusChunksProcessed:  {StatusProcessingChunks},
	StatusCombiningChunks:  {StatusChunksProcessed},

	StatusTranscribing: {StatusAudioExtracted},
	StatusTranscribed:  {StatusTranscribing},
	StatusTranslating:  {StatusTranscribed},
	StatusTranslated:   {StatusTranslating},
	StatusSynthesizing: {StatusTranslated},
	StatusTTSGenerated: {StatusSynthesizing},
	StatusMixing:       {StatusTTSGenerated},
	StatusMixed:        {StatusMixing},
	StatusMuxing:       {StatusMixed},

	StatusDubbedComplete:    {StatusCombiningChunks, StatusMuxing},
	StatusLipsyncProcessing: {StatusDubbedComplete},
	StatusCompleted:         {StatusDubbedComplete, StatusLipsyncProcessing},

	StatusDownloadFailed:      {StatusDownloading},
	StatusExtractFailed:       {StatusExtractingAudio},
	StatusChunksFailed:        {StatusProcessingChunks},
	StatusCombineFailed:       {StatusCombiningChunks},
	StatusTranscriptionFailed: {StatusTranscribing},
	StatusTranslationFailed:   {StatusTranslating},
	StatusTTSFailed:           {StatusSynthesizing},
	StatusMixFailed:           {StatusMixing},
	StatusMuxFailed:           {StatusMuxing},
	StatusLipsyncFailed:       {StatusLipsyncProcessing},
}

// retryTargets maps each failure status back to the status from which the
// failed stage can be re-dispatched.
var retryTargets = map[Status]Status{
	StatusDownloadFailed:      StatusPending,
	StatusExtractFailed:       StatusDownloaded,
	StatusChunksFailed:        StatusAudioExtracted,
	StatusCombineFailed:       StatusChunksProcessed,
	StatusTranscriptionFailed: StatusAudioExtracted,
	StatusTranslationFailed:   StatusTranscribed,
	StatusTTSFailed:           StatusTranslated,
	StatusMixFailed:           StatusTTSGenerated,
	StatusMuxFailed:           StatusMixed,
	StatusLipsyncFailed:       StatusDubbedComplete,
}

// processingRollbacks maps each in-flight status to its stage start, used
// when reclaiming items whose heartbeats expired.
var processingRollbacks = map[Status]Status{
	StatusDownloading:       StatusPending,
	StatusExtractingAudio:   StatusDownloaded,
	StatusProcessingChunks:  StatusAudioExtracted,
	StatusCombiningChunks:   StatusChunksProcessed,
	StatusTranscribing:      StatusAudioExtracted,
	StatusTranslating:       StatusTranscribed,
	StatusSynthesizing:      StatusTranslated,
	StatusMixing:            StatusTTSGenerated,
	StatusMuxing:            StatusMixed,
	StatusLipsyncProcessing: StatusDubbedComplete,
}

// CanTransition reports whether the transition table permits from → to.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedFrom[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// RetryTarget returns the stage-start status a failure status resumes from.
func RetryTarget(failed Status) (Status, bool) {
	target, ok := retryTargets[failed]
	return target, ok
}

// IsFailure reports whether a status is a stage-specific failure status.
func IsFailure(status Status) bool {
	_, ok := retryTargets[status]
	return ok
}

// IsProcessing reports whether a status reflects an in-flight stage.
func IsProcessing(status Status) bool {
	_, ok := processingRollbacks[status]
	return ok
}

// IsTerminal reports whether the pipeline is finished with the video.
func IsTerminal(status Status) bool {
	return status == StatusCompleted
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeChunked:
		return ModeChunked, true
	case ModeLinear:
		return ModeLinear, true
	default:
		return "", false
	}
}

// Video is a dubbing job persisted in SQLite.
type Video struct {
	ID                  int64
	SourceURL           string
	SourcePath          string
	TargetLanguage      string
	SourceLanguage      string
	Mode                Mode
	Status              Status
	ErrorMessage        string
	OriginalFile        string
	TranscribeAudioFile string
	MixAudioFile        string
	MixedTrackFile      string
	FinalFile           string
	DurationSeconds     float64
	ChunkSeconds        int
	ProgressStage       string
	ProgressPercent     float64
	ProgressMessage     string
	LastHeartbeat       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SetProgress updates all three progress fields together.
func (v *Video) SetProgress(stage, message string, percent float64) {
	v.ProgressStage = stage
	v.ProgressMessage = message
	v.ProgressPercent = percent
}

// SetFailed marks the video with a stage-specific failure status.
func (v *Video) SetFailed(status Status, message string) {
	v.Status = status
	v.ErrorMessage = message
	v.ProgressPercent = 0
	v.ProgressMessage = message
	v.LastHeartbeat = nil
}

// Speaker is a stable per-video identity for a diarization tag.
type Speaker struct {
	ID               int64
	VideoID          int64
	DiarizationKey   string
	Gender           string
	GenderConfidence *float64
	AgeGroup         string
	Emotion          string
	VoiceID          string
	Rate             float64
	Pitch            float64
	Gain             float64
	ClonedVoiceID    string
	ClonedSamplePath string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Cloned reports whether a cloned voice exists for the speaker.
func (s Speaker) Cloned() bool {
	return strings.TrimSpace(s.ClonedVoiceID) != ""
}

// Segment is one diarized, transcribed line of dialogue.
type Segment struct {
	ID              int64
	VideoID         int64
	SpeakerID       int64
	ChunkIndex      int
	StartTime       float64
	EndTime         float64
	SourceText      string
	TranslatedText  string
	Emotion         string
	SynthesizedPath string
	FittedPath      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotDuration is the segment's allotted time window in seconds.
func (s Segment) SlotDuration() float64 {
	return s.EndTime - s.StartTime
}

// HealthSummary describes aggregated video counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
