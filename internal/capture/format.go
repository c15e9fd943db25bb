// SPDX-License-Identifier: MIT

package capture

import "github.com/streamclip/clipd/internal/clip"

// FormatSelector maps a quality tier onto the capture engine's
// format-selection expression. The trailing alternative keeps the capture
// usable for sources that publish no stream in the requested band.
func FormatSelector(q clip.Quality) string {
	switch q {
	case clip.QualityLow:
		return "worst[height>=480]/worst"
	case clip.QualityMedium:
		return "best[height<=720]/best"
	case clip.QualityHigh:
		return "best[height<=1080]/best"
	default:
		return "best"
	}
}
