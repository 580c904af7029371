//go:build !gst

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"errors"

	"github.com/momentics/hioload-pw/api"
)

func initStreams() {}

func newStream(*Service, api.Loop, string, map[string]string) (api.Stream, error) {
	return nil, api.Wrap(api.ErrNotSupported, "pipewire.NewStream", errors.New("capture needs a build with the gst tag"))
}
