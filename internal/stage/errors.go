// SPDX-License-Identifier: MIT

package stage

import "errors"

var (
	// ErrTimeout reports that a stage exceeded its wall-clock bound and its
	// process group was killed.
	ErrTimeout = errors.New("stage timed out")

	// ErrCancelled reports that a stage was torn down because the job was
	// abandoned (typically daemon shutdown).
	ErrCancelled = errors.New("stage cancelled")
)
