// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
)

func TestDefaultConfig_MatchesOriginalEnvelope(t *testing.T) {
	c, err := DefaultConfig().Capture.Constraints()
	require.NoError(t, err)

	assert.Equal(t, []api.VideoFormat{
		api.VideoFormatRGB, api.VideoFormatRGBA, api.VideoFormatRGBx,
		api.VideoFormatBGRx, api.VideoFormatYUY2, api.VideoFormatI420,
	}, c.Formats)
	assert.Equal(t, api.Rectangle{Width: 320, Height: 240}, c.Size.Default)
	assert.Equal(t, api.Rectangle{Width: 4096, Height: 4096}, c.Size.Max)
	assert.Equal(t, api.Fraction{Num: 25, Denom: 1}, c.Framerate.Default)
	assert.Equal(t, api.Fraction{Num: 1000, Denom: 1}, c.Framerate.Max)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
invoke_queue_size: 64
capture:
  target: "42"
  formats: [RGBA]
`), 0o600))

	t.Setenv("HIOLOAD_PW_INVOKE_QUEUE_SIZE", "256")
	t.Setenv("HIOLOAD_PW_CAPTURE_FRAMERATE", "30/1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 256, cfg.InvokeQueueSize, "environment wins over file")
	assert.Equal(t, "42", cfg.Capture.Target)
	assert.Equal(t, []string{"RGBA"}, cfg.Capture.Formats)
	assert.Equal(t, "30/1", cfg.Capture.Framerate)
	assert.Equal(t, "pw-dump", cfg.DumpBinary, "defaults survive")
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("HIOLOAD_PW_LOG_FORMAT", "xml")
	_, err := Load("")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestCaptureConfig_RejectsDefaultOutsideRange(t *testing.T) {
	cc := DefaultConfig().Capture
	cc.Width = 8000
	_, err := cc.Constraints()
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	cc = DefaultConfig().Capture
	cc.Formats = []string{"P010"}
	_, err = cc.Constraints()
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestParseFraction(t *testing.T) {
	f, err := ParseFraction("30000/1001")
	require.NoError(t, err)
	assert.Equal(t, api.Fraction{Num: 30000, Denom: 1001}, f)

	f, err = ParseFraction("60")
	require.NoError(t, err)
	assert.Equal(t, api.Fraction{Num: 60, Denom: 1}, f)

	_, err = ParseFraction("1/0")
	assert.Error(t, err)
}
