package audio

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoudnormOutput(t *testing.T) {
	t.Run("extracts trailing json block", func(t *testing.T) {
		stderr := `size=N/A time=00:00:12.80 bitrate=N/A speed= 512x
[Parsed_loudnorm_0 @ 0x5616]
{
	"input_i" : "-23.61",
	"input_tp" : "-6.53",
	"input_lra" : "5.20",
	"input_thresh" : "-34.13",
	"output_i" : "-16.05",
	"output_tp" : "-1.50",
	"output_lra" : "4.90",
	"output_thresh" : "-26.55",
	"normalization_type" : "linear",
	"target_offset" : "0.25"
}`
		stats, err := parseLoudnormOutput(stderr)
		require.NoError(t, err)
		assert.Equal(t, "-23.61", stats.InputI)
		assert.Equal(t, "-16.05", stats.OutputI)
		assert.Equal(t, "-1.50", stats.OutputTP)
		assert.Equal(t, "0.25", stats.Offset)
	})

	t.Run("no json block", func(t *testing.T) {
		_, err := parseLoudnormOutput("ffmpeg version 6.0 ... nothing useful")
		require.Error(t, err)
	})
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	listPath := dir + "/concat.txt"

	require.NoError(t, writeConcatList([]string{"/a.wav", "/b.wav", "/c.wav"}, "/silence.wav", listPath))

	content := readFile(t, listPath)
	assert.Equal(t,
		"file '/a.wav'\nfile '/silence.wav'\nfile '/b.wav'\nfile '/silence.wav'\nfile '/c.wav'\n",
		content, "silence between turns, none after the last")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
