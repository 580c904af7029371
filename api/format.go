// File: api/format.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Media format model used during stream format negotiation.

package api

import (
	"fmt"
	"strings"
)

// MediaType is the top-level media class of a format.
type MediaType uint32

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
	MediaTypeImage
	MediaTypeBinary
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeImage:
		return "image"
	case MediaTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// MediaSubtype refines a MediaType (raw, or a compressed encoding).
type MediaSubtype uint32

const (
	MediaSubtypeUnknown MediaSubtype = iota
	MediaSubtypeRaw
	MediaSubtypeMJPG
	MediaSubtypeH264
)

func (s MediaSubtype) String() string {
	switch s {
	case MediaSubtypeRaw:
		return "raw"
	case MediaSubtypeMJPG:
		return "mjpg"
	case MediaSubtypeH264:
		return "h264"
	default:
		return "unknown"
	}
}

// VideoFormat is a raw pixel layout.
type VideoFormat uint32

const (
	VideoFormatUnknown VideoFormat = iota
	VideoFormatRGB
	VideoFormatRGBA
	VideoFormatRGBx
	VideoFormatBGRx
	VideoFormatBGRA
	VideoFormatYUY2
	VideoFormatI420
	VideoFormatNV12
)

var videoFormatNames = map[VideoFormat]string{
	VideoFormatRGB:  "RGB",
	VideoFormatRGBA: "RGBA",
	VideoFormatRGBx: "RGBx",
	VideoFormatBGRx: "BGRx",
	VideoFormatBGRA: "BGRA",
	VideoFormatYUY2: "YUY2",
	VideoFormatI420: "I420",
	VideoFormatNV12: "NV12",
}

func (f VideoFormat) String() string {
	if n, ok := videoFormatNames[f]; ok {
		return n
	}
	return "unknown"
}

// ParseVideoFormat maps a format name (case-insensitive) to a VideoFormat.
func ParseVideoFormat(name string) (VideoFormat, error) {
	for f, n := range videoFormatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return VideoFormatUnknown, Wrap(ErrInvalidArgument, "ParseVideoFormat", fmt.Errorf("unknown video format %q", name))
}

// Rectangle is a frame size in pixels.
type Rectangle struct {
	Width  uint32 `yaml:"width" msgpack:"width"`
	Height uint32 `yaml:"height" msgpack:"height"`
}

func (r Rectangle) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// Within reports whether r lies in [min, max] on both axes.
func (r Rectangle) Within(min, max Rectangle) bool {
	return r.Width >= min.Width && r.Width <= max.Width &&
		r.Height >= min.Height && r.Height <= max.Height
}

// Fraction is a rational framerate.
type Fraction struct {
	Num   uint32 `yaml:"num" msgpack:"num"`
	Denom uint32 `yaml:"denom" msgpack:"denom"`
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Denom) }

// Cmp compares f and g as rationals: -1, 0 or +1. Zero denominators compare as zero.
func (f Fraction) Cmp(g Fraction) int {
	a := uint64(f.Num) * uint64(max(g.Denom, 1))
	b := uint64(g.Num) * uint64(max(f.Denom, 1))
	if f.Denom == 0 {
		a = 0
	}
	if g.Denom == 0 {
		b = 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// StreamFormat is a negotiated format confirmed by the service.
type StreamFormat struct {
	MediaType    MediaType    `msgpack:"media_type"`
	MediaSubtype MediaSubtype `msgpack:"media_subtype"`
	Format       VideoFormat  `msgpack:"format"`
	Size         Rectangle    `msgpack:"size"`
	Framerate    Fraction     `msgpack:"framerate"`
}

func (f StreamFormat) String() string {
	return fmt.Sprintf("%s/%s %s %s@%s", f.MediaType, f.MediaSubtype, f.Format, f.Size, f.Framerate)
}

// SizeRange bounds acceptable frame sizes.
type SizeRange struct {
	Default Rectangle `yaml:"default"`
	Min     Rectangle `yaml:"min"`
	Max     Rectangle `yaml:"max"`
}

// FramerateRange bounds acceptable framerates.
type FramerateRange struct {
	Default Fraction `yaml:"default"`
	Min     Fraction `yaml:"min"`
	Max     Fraction `yaml:"max"`
}

// FormatConstraints is the envelope of formats a capture stream accepts.
// Formats is ordered by preference.
type FormatConstraints struct {
	MediaType    MediaType
	MediaSubtype MediaSubtype
	Formats      []VideoFormat
	Size         SizeRange
	Framerate    FramerateRange
}

// Validate checks that the envelope is internally consistent.
func (c FormatConstraints) Validate() error {
	switch {
	case len(c.Formats) == 0:
		return Wrap(ErrInvalidArgument, "FormatConstraints", fmt.Errorf("no pixel formats"))
	case !c.Size.Min.Within(Rectangle{}, c.Size.Max):
		return Wrap(ErrInvalidArgument, "FormatConstraints", fmt.Errorf("size min %s exceeds max %s", c.Size.Min, c.Size.Max))
	case !c.Size.Default.Within(c.Size.Min, c.Size.Max):
		return Wrap(ErrInvalidArgument, "FormatConstraints", fmt.Errorf("default size %s out of range", c.Size.Default))
	case c.Framerate.Min.Cmp(c.Framerate.Max) > 0:
		return Wrap(ErrInvalidArgument, "FormatConstraints", fmt.Errorf("framerate min %s exceeds max %s", c.Framerate.Min, c.Framerate.Max))
	case c.Framerate.Default.Cmp(c.Framerate.Min) < 0 || c.Framerate.Default.Cmp(c.Framerate.Max) > 0:
		return Wrap(ErrInvalidArgument, "FormatConstraints", fmt.Errorf("default framerate %s out of range", c.Framerate.Default))
	}
	return nil
}

// Accepts reports whether a proposed format lies within the envelope.
func (c FormatConstraints) Accepts(f StreamFormat) bool {
	if f.MediaType != c.MediaType || f.MediaSubtype != c.MediaSubtype {
		return false
	}
	found := false
	for _, vf := range c.Formats {
		if vf == f.Format {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if !f.Size.Within(c.Size.Min, c.Size.Max) {
		return false
	}
	return f.Framerate.Cmp(c.Framerate.Min) >= 0 && f.Framerate.Cmp(c.Framerate.Max) <= 0
}
