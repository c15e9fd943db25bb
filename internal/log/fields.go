// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldExitCode  = "exit_code"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldProgress = "progress"

	// Media fields
	FieldQuality  = "quality"
	FieldDuration = "duration_seconds"

	// Path / URL fields
	FieldPath      = "path"
	FieldSourceURL = "source_url"
)
