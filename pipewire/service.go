// Package pipewire
// Author: momentics <momentics@gmail.com>
//
// api.Service backed by a running PipeWire daemon. The registry is followed
// through `pw-dump --monitor`; capture streams use GStreamer's pipewiresrc
// (built with the gst tag).

package pipewire

import (
	"fmt"
	"log/slog"
	"maps"
	"os/exec"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
)

// DefaultDumpBinary is the registry monitor executable.
const DefaultDumpBinary = "pw-dump"

// Service talks to the PipeWire daemon named by Remote (empty for the default).
type Service struct {
	DumpBinary string
	Remote     string
	Log        *slog.Logger

	dumpPath string
}

var _ api.Service = (*Service)(nil)

// New returns a service configured from cfg.
func New(cfg *control.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{DumpBinary: cfg.DumpBinary, Remote: cfg.Remote, Log: log}
}

// Init locates the monitor binary and prepares the stream backend.
func (s *Service) Init() error {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	bin := s.DumpBinary
	if bin == "" {
		bin = DefaultDumpBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("pipewire: locate %s: %w", bin, err)
	}
	s.dumpPath = path
	initStreams()
	s.Log.Debug("pipewire service ready", "pw_dump", path, "remote", s.Remote)
	return nil
}

// Deinit is a no-op; every process and pipeline is owned by a connection.
func (s *Service) Deinit() error { return nil }

// Connect binds a connection to loop.
func (s *Service) Connect(loop api.Loop, props map[string]string) (api.Core, error) {
	if s.dumpPath == "" {
		return nil, api.ErrNotInitialized
	}
	return &core{svc: s, loop: loop, props: maps.Clone(props)}, nil
}

func (s *Service) dumpArgs() []string {
	args := []string{"--monitor", "--no-colors"}
	if s.Remote != "" {
		args = append(args, "--remote", s.Remote)
	}
	return args
}

type core struct {
	svc   *Service
	loop  api.Loop
	props map[string]string
}

func (c *core) GetRegistry() (api.Registry, error) {
	return newRegistry(c.svc, c.loop)
}

func (c *core) NewStream(name string, props map[string]string) (api.Stream, error) {
	return newStream(c.svc, c.loop, name, props)
}

func (c *core) Disconnect() error { return nil }

type hookFunc func()

func (h hookFunc) Remove() { h() }
