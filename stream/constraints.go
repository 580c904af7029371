// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stream

import (
	"maps"

	"github.com/momentics/hioload-pw/api"
)

// DefaultName is the stream name used when WithName is not given.
const DefaultName = "hioload-pw-capture"

// DefaultConstraints is the capture envelope used by hosts that do not
// configure one: common raw layouts, 320x240 default, 25 fps default.
func DefaultConstraints() api.FormatConstraints {
	return api.FormatConstraints{
		MediaType:    api.MediaTypeVideo,
		MediaSubtype: api.MediaSubtypeRaw,
		Formats: []api.VideoFormat{
			api.VideoFormatRGB,
			api.VideoFormatRGBA,
			api.VideoFormatRGBx,
			api.VideoFormatBGRx,
			api.VideoFormatYUY2,
			api.VideoFormatI420,
		},
		Size: api.SizeRange{
			Default: api.Rectangle{Width: 320, Height: 240},
			Min:     api.Rectangle{Width: 1, Height: 1},
			Max:     api.Rectangle{Width: 4096, Height: 4096},
		},
		Framerate: api.FramerateRange{
			Default: api.Fraction{Num: 25, Denom: 1},
			Min:     api.Fraction{Num: 0, Denom: 1},
			Max:     api.Fraction{Num: 1000, Denom: 1},
		},
	}
}

var defaultProps = map[string]string{
	"media.type":      "Video",
	"media.category":  "Capture",
	"media.role":      "Camera",
	"priority.driver": "10000",
}

// DefaultProperties returns the stream properties announced to the service.
func DefaultProperties() map[string]string { return maps.Clone(defaultProps) }
