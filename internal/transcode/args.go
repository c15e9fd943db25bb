// SPDX-License-Identifier: MIT

package transcode

import "fmt"

// BuildPreviewArgs assembles the ffmpeg command line producing a web-playable
// preview: width-capped H.264/AAC, fast preset, faststart layout for
// progressive playback. Machine-readable progress goes to stdout.
func BuildPreviewArgs(inputPath, outputPath string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 640
	}
	// -2 keeps the height even while preserving aspect; min() never upscales.
	vf := fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)

	return []string{
		"-nostdin",
		"-hide_banner",
		"-y",
		"-i", inputPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "28",
		"-c:a", "aac",
		"-b:a", "96k",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		outputPath,
	}
}
