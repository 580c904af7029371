//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-pw/api"
)

func newRegistry(*Service, api.Loop) (api.Registry, error) {
	return nil, api.Wrap(api.ErrNotSupported, "pipewire.GetRegistry", fmt.Errorf("registry monitor needs linux, have %s", runtime.GOOS))
}
