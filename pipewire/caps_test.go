// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/stream"
)

func TestParseCaps(t *testing.T) {
	f, err := parseCaps("video/x-raw, format=(string)BGRx, width=(int)640, height=(int)480, framerate=(fraction)30/1, pixel-aspect-ratio=(fraction)1/1")
	require.NoError(t, err)
	assert.Equal(t, api.StreamFormat{
		MediaType:    api.MediaTypeVideo,
		MediaSubtype: api.MediaSubtypeRaw,
		Format:       api.VideoFormatBGRx,
		Size:         api.Rectangle{Width: 640, Height: 480},
		Framerate:    api.Fraction{Num: 30, Denom: 1},
	}, f)

	f, err = parseCaps("image/jpeg, width=(int)1280, height=(int)720, framerate=(fraction)15/1")
	require.NoError(t, err)
	assert.Equal(t, api.MediaSubtypeMJPG, f.MediaSubtype)

	f, err = parseCaps("video/x-raw(memory:DMABuf), format=(string)NV12, width=(int)2, height=(int)2, framerate=(fraction)0/1")
	require.NoError(t, err)
	assert.Equal(t, api.VideoFormatNV12, f.Format)

	_, err = parseCaps("application/x-rtp, media=(string)video")
	assert.Error(t, err)
	_, err = parseCaps("video/x-raw, width=(int)wide")
	assert.Error(t, err)
}

func TestCapsFilter(t *testing.T) {
	assert.Equal(t,
		"video/x-raw, format=(string){ RGB, RGBA, RGBx, BGRx, YUY2, I420 }, width=(int)[ 1, 4096 ], height=(int)[ 1, 4096 ], framerate=(fraction)[ 0/1, 1000/1 ]",
		capsFilter(stream.DefaultConstraints()))
}
