package protocol

import "time"

// TranscribeRequest asks the daemon to transcribe a waveform file it can read.
type TranscribeRequest struct {
	RunID    string `json:"run_id,omitempty"`
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Summary  bool   `json:"summary,omitempty"`
}

// TranscribeAck is the synchronous reply to a TranscribeRequest.
type TranscribeAck struct {
	RunID    string `json:"run_id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// SegmentEvent carries one recognized segment of a run.
type SegmentEvent struct {
	RunID   string `json:"run_id"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// ProgressEvent reports run progress in percent.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Percent int    `json:"percent"`
}

// RunStatus is published once when a run ends.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CancelRequest asks the daemon to stop a run at its next chunk boundary.
// An empty RunID cancels whatever run is active.
type CancelRequest struct {
	RunID string `json:"run_id,omitempty"`
}

// SummaryRequest asks for an extractive summary of Text.
type SummaryRequest struct {
	Text            string  `json:"text"`
	CompressionRate float64 `json:"compression_rate,omitempty"`
}

// SummaryResponse is the reply to a SummaryRequest.
type SummaryResponse struct {
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

const (
	SubjectTranscribeRequest  = "notes.transcribe.request"
	SubjectTranscribeCancel   = "notes.transcribe.cancel"
	SubjectTranscriptSegment  = "notes.transcript.segment"
	SubjectTranscriptProgress = "notes.transcript.progress"
	SubjectTranscriptDone     = "notes.transcript.done"
	SubjectSummaryRequest     = "notes.summary.request"
)
