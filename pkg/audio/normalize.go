package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metrics are the loudness measurements of a normalized file.
type Metrics struct {
	LUFSIntegrated float64
	PeakDB         float64 // dBTP
	DurationSec    float64
}

// loudnormStats is the JSON block the loudnorm filter prints on stderr.
type loudnormStats struct {
	InputI   string `json:"input_i"`
	InputTP  string `json:"input_tp"`
	InputLRA string `json:"input_lra"`
	InputTh  string `json:"input_thresh"`
	OutputI  string `json:"output_i"`
	OutputTP string `json:"output_tp"`
	Offset   string `json:"target_offset"`
}

// Normalize runs two-pass EBU R128 loudness normalization: a measurement pass
// followed by a linear correction pass using the measured values. Returns the
// output file's measured metrics.
func Normalize(ctx context.Context, input, output string, targetLUFS, peakCeiling float64) (*Metrics, error) {
	measured, err := runLoudnorm(ctx, input, "-", fmt.Sprintf(
		"loudnorm=I=%.1f:TP=%.1f:LRA=11:print_format=json", targetLUFS, peakCeiling))
	if err != nil {
		return nil, fmt.Errorf("loudnorm measurement pass failed: %w", err)
	}

	final, err := runLoudnorm(ctx, input, output, fmt.Sprintf(
		"loudnorm=I=%.1f:TP=%.1f:LRA=11:measured_I=%s:measured_TP=%s:measured_LRA=%s:measured_thresh=%s:offset=%s:linear=true:print_format=json",
		targetLUFS, peakCeiling,
		measured.InputI, measured.InputTP, measured.InputLRA, measured.InputTh, measured.Offset))
	if err != nil {
		return nil, fmt.Errorf("loudnorm correction pass failed: %w", err)
	}

	lufs, err := strconv.ParseFloat(final.OutputI, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse output loudness %q: %w", final.OutputI, err)
	}
	peak, err := strconv.ParseFloat(final.OutputTP, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse output peak %q: %w", final.OutputTP, err)
	}
	duration, err := ProbeDuration(ctx, output)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		LUFSIntegrated: lufs,
		PeakDB:         peak,
		DurationSec:    duration,
	}, nil
}

// runLoudnorm runs one loudnorm pass and parses the JSON stats from stderr.
// output "-" runs a measurement-only pass into the null muxer.
func runLoudnorm(ctx context.Context, input, output, filter string) (*loudnormStats, error) {
	args := []string{"-hide_banner", "-i", input, "-af", filter}
	if output == "-" {
		args = append(args, "-f", "null", "-")
	} else {
		args = append(args, "-c:a", wavCodec, "-ar", sampleRate, "-ac", channels, "-y", output)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg loudnorm failed: %w\n%s", err, stderr.String())
	}

	stats, err := parseLoudnormOutput(stderr.String())
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// parseLoudnormOutput extracts the trailing JSON block loudnorm prints among
// FFmpeg's other stderr noise.
func parseLoudnormOutput(stderr string) (*loudnormStats, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no loudnorm stats found in ffmpeg output")
	}

	var stats loudnormStats
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &stats); err != nil {
		return nil, fmt.Errorf("failed to parse loudnorm stats: %w", err)
	}
	return &stats, nil
}

// ProbeDuration reads the container duration in seconds via ffprobe.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", string(out), err)
	}
	return duration, nil
}
