// SPDX-License-Identifier: MIT

// Package clip defines the job model tracked by the registry and driven by
// the orchestrator.
package clip

import "time"

// State is the client-visible lifecycle of a clip job.
// It is intentionally coarse-grained and stable.
type State string

const (
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case StateReady, StateError:
		return true
	}
	return false
}

// Reason is a compact, typed failure signal.
// Keep these stable: metrics and client UX depend on them.
type Reason string

const (
	ReasonNone            Reason = "R_NONE"
	ReasonBadRequest      Reason = "R_BAD_REQUEST"
	ReasonCaptureLaunch   Reason = "R_CAPTURE_LAUNCH_FAILED"
	ReasonCaptureFailed   Reason = "R_CAPTURE_FAILED"
	ReasonTranscodeFailed Reason = "R_TRANSCODE_FAILED"
	ReasonStageTimeout    Reason = "R_STAGE_TIMEOUT"
	ReasonShutdown        Reason = "R_SHUTDOWN"
)

// Quality selects the capture format policy.
type Quality string

const (
	QualityLow     Quality = "low"
	QualityMedium  Quality = "medium"
	QualityHigh    Quality = "high"
	QualityDefault Quality = "default"
)

// ParseQuality maps a request string onto a known tier.
// Unknown or empty values fall back to the default tier.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return Quality(s)
	}
	return QualityDefault
}

// Job is the registry record for one capture-then-transcode request.
// The registry owns the record for the process lifetime; callers only ever
// see copies.
type Job struct {
	ID    string `json:"id"`
	State State  `json:"state"`

	// Progress is a per-stage percentage in [0, 100]. It resets to 0 when
	// the job moves from capturing to processing.
	Progress float64 `json:"progress"`

	// SourcePath is the raw capture file. Set on capture success, consumed
	// by the transcode stage and removed afterwards.
	SourcePath string `json:"-"`
	// ArtifactPath is the finished preview clip. Meaningful only when the
	// state is ready.
	ArtifactPath string `json:"-"`

	// Error is the diagnostic detail, set iff State == StateError.
	Error  string `json:"error,omitempty"`
	Reason Reason `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Spec captures the validated inputs of one capture request.
type Spec struct {
	URL             string
	Quality         Quality
	DurationSeconds int
}
