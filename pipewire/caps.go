// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/hioload-pw/api"
)

var mediaNames = map[string]struct {
	typ api.MediaType
	sub api.MediaSubtype
}{
	"video/x-raw":  {api.MediaTypeVideo, api.MediaSubtypeRaw},
	"image/jpeg":   {api.MediaTypeVideo, api.MediaSubtypeMJPG},
	"video/x-h264": {api.MediaTypeVideo, api.MediaSubtypeH264},
	"audio/x-raw":  {api.MediaTypeAudio, api.MediaSubtypeRaw},
}

// parseCaps reads a fixed GStreamer caps string such as
// "video/x-raw, format=(string)BGRx, width=(int)640, height=(int)480, framerate=(fraction)30/1".
func parseCaps(caps string) (api.StreamFormat, error) {
	fields := strings.Split(caps, ",")
	name := strings.TrimSpace(fields[0])
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i] // drop caps features, e.g. (memory:DMABuf)
	}
	var f api.StreamFormat
	m, ok := mediaNames[name]
	if !ok {
		return f, fmt.Errorf("pipewire: unsupported caps %q", name)
	}
	f.MediaType, f.MediaSubtype = m.typ, m.sub

	for _, field := range fields[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		if i := strings.IndexByte(val, ')'); strings.HasPrefix(val, "(") && i > 0 {
			val = val[i+1:]
		}
		var err error
		switch key {
		case "format":
			f.Format, err = api.ParseVideoFormat(val)
		case "width":
			f.Size.Width, err = parseUint(val)
		case "height":
			f.Size.Height, err = parseUint(val)
		case "framerate":
			f.Framerate, err = parseFraction(val)
		}
		if err != nil {
			return f, fmt.Errorf("pipewire: caps field %s: %w", key, err)
		}
	}
	return f, nil
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseFraction(s string) (api.Fraction, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return api.Fraction{}, fmt.Errorf("bad fraction %q", s)
	}
	n, err := parseUint(num)
	if err != nil {
		return api.Fraction{}, err
	}
	d, err := parseUint(den)
	if err != nil {
		return api.Fraction{}, err
	}
	return api.Fraction{Num: n, Denom: d}, nil
}

// capsFilter renders constraints as caps accepted by pipewiresrc.
func capsFilter(c api.FormatConstraints) string {
	formats := make([]string, len(c.Formats))
	for i, f := range c.Formats {
		formats[i] = f.String()
	}
	return fmt.Sprintf("video/x-raw, format=(string){ %s }, width=(int)[ %d, %d ], height=(int)[ %d, %d ], framerate=(fraction)[ %s, %s ]",
		strings.Join(formats, ", "),
		c.Size.Min.Width, c.Size.Max.Width,
		c.Size.Min.Height, c.Size.Max.Height,
		c.Framerate.Min, c.Framerate.Max,
	)
}
