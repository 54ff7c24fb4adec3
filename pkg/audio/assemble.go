// Package audio wraps the FFmpeg operations of the pipeline: dialogue
// assembly with inter-turn silence, and two-pass loudness normalization with
// measured metrics.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Output format constants shared by all FFmpeg runs. Everything the pipeline
// touches is mono 44.1kHz 16-bit WAV so concat never needs re-encoding
// decisions.
const (
	sampleRate = "44100"
	channels   = "1"
	wavCodec   = "pcm_s16le"
)

// AssembleDialogue concatenates per-turn WAV files into a single WAV with a
// fixed silence gap between turns. tmpDir holds the generated silence file
// and the concat list; the caller owns cleanup.
func AssembleDialogue(ctx context.Context, turnPaths []string, silence time.Duration, tmpDir, output string) error {
	if len(turnPaths) == 0 {
		return fmt.Errorf("no dialogue turns to assemble")
	}

	silencePath := filepath.Join(tmpDir, "silence.wav")
	if err := generateSilence(ctx, silence, silencePath); err != nil {
		return fmt.Errorf("failed to generate silence: %w", err)
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := writeConcatList(turnPaths, silencePath, listPath); err != nil {
		return fmt.Errorf("failed to build concat list: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", wavCodec,
		"-ar", sampleRate,
		"-ac", channels,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w\n%s", err, stderr.String())
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("assembled file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("assembled file is empty")
	}
	return nil
}

// generateSilence renders a silence WAV of the given duration.
func generateSilence(ctx context.Context, d time.Duration, output string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "lavfi",
		"-i", "anullsrc=r="+sampleRate+":cl=mono",
		"-t", fmt.Sprintf("%.3f", d.Seconds()),
		"-c:a", wavCodec,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg silence generation failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// writeConcatList emits the FFmpeg concat demuxer list: each turn followed by
// the silence gap, no gap after the last turn.
func writeConcatList(turnPaths []string, silencePath, listPath string) error {
	var lines []string
	for i, p := range turnPaths {
		lines = append(lines, fmt.Sprintf("file '%s'", p))
		if i < len(turnPaths)-1 {
			lines = append(lines, fmt.Sprintf("file '%s'", silencePath))
		}
	}
	return os.WriteFile(listPath, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
