package api

import (
	"time"

	"dubber/internal/stage"
	"dubber/internal/store"
	"dubber/internal/workflow"
)

// Progress captures stage progress information for a video.
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Video describes a dubbing job in a transport-friendly format.
type Video struct {
	ID              int64    `json:"id"`
	SourceURL       string   `json:"sourceUrl,omitempty"`
	SourcePath      string   `json:"sourcePath,omitempty"`
	TargetLanguage  string   `json:"targetLanguage"`
	SourceLanguage  string   `json:"sourceLanguage,omitempty"`
	Mode            string   `json:"mode"`
	Status          string   `json:"status"`
	Progress        Progress `json:"progress"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	ChunkSeconds    int      `json:"chunkSeconds,omitempty"`
	FinalFile       string   `json:"finalFile,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

// FromVideo converts a store record into its API shape.
func FromVideo(v *store.Video) Video {
	if v == nil {
		return Video{}
	}
	return Video{
		ID:             v.ID,
		SourceURL:      v.SourceURL,
		SourcePath:     v.SourcePath,
		TargetLanguage: v.TargetLanguage,
		SourceLanguage: v.SourceLanguage,
		Mode:           string(v.Mode),
		Status:         string(v.Status),
		Progress: Progress{
			Stage:   v.ProgressStage,
			Percent: v.ProgressPercent,
			Message: v.ProgressMessage,
		},
		ErrorMessage:    v.ErrorMessage,
		DurationSeconds: v.DurationSeconds,
		ChunkSeconds:    v.ChunkSeconds,
		FinalFile:       v.FinalFile,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       v.UpdatedAt.Format(time.RFC3339),
	}
}

// SubmitRequest is the payload for queuing a new video.
type SubmitRequest struct {
	SourceURL      string `json:"sourceUrl,omitempty"`
	SourcePath     string `json:"sourcePath,omitempty"`
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

// VideoListResponse wraps a collection of videos.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QueueCounts aggregates video counts per lifecycle bucket.
type QueueCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// StatusResponse summarizes daemon and workflow state.
type StatusResponse struct {
	Running     bool          `json:"running"`
	LastError   string        `json:"lastError,omitempty"`
	LastVideo   *Video        `json:"lastVideo,omitempty"`
	Queue       QueueCounts   `json:"queue"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) StatusResponse {
	resp := StatusResponse{
		Running:   summary.Running,
		LastError: summary.LastError,
		Queue: QueueCounts{
			Total:      summary.Queue.Total,
			Pending:    summary.Queue.Pending,
			Processing: summary.Queue.Processing,
			Failed:     summary.Queue.Failed,
			Completed:  summary.Queue.Completed,
		},
	}
	if summary.LastVideo != nil {
		video := FromVideo(summary.LastVideo)
		resp.LastVideo = &video
	}
	for name, health := range summary.StageHealth {
		resp.StageHealth = append(resp.StageHealth, StageHealth{
			Name:   nameOrHealth(name, health),
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return resp
}

func nameOrHealth(name string, health stage.Health) string {
	if health.Name != "" {
		return health.Name
	}
	return name
}

// RetryAllResponse reports the videos reset by a bulk retry.
type RetryAllResponse struct {
	VideoIDs []int64 `json:"videoIds"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
