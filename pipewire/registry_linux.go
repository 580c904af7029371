//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-pw/api"
)

const readChunk = 64 * 1024

// registry follows pw-dump's output through a non-blocking pipe registered
// as a loop source. The child is started by AddListener.
type registry struct {
	svc  *Service
	loop api.Loop

	cmd    *exec.Cmd
	pipe   *os.File
	fd     int
	parser *dumpParser
	buf    []byte
}

func newRegistry(svc *Service, loop api.Loop) (api.Registry, error) {
	return &registry{svc: svc, loop: loop, fd: -1}, nil
}

func (r *registry) AddListener(events api.RegistryEvents) (api.Hook, error) {
	if r.cmd != nil {
		return nil, errors.New("pipewire: registry listener already added")
	}
	rd, wr, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipewire: pipe: %w", err)
	}
	cmd := exec.Command(r.svc.dumpPath, r.svc.dumpArgs()...)
	cmd.Stdout = wr
	if err := cmd.Start(); err != nil {
		rd.Close()
		wr.Close()
		return nil, fmt.Errorf("pipewire: start %s: %w", r.svc.dumpPath, err)
	}
	wr.Close()

	fd := int(rd.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		r.kill(cmd, rd)
		return nil, fmt.Errorf("pipewire: nonblocking pipe: %w", err)
	}
	r.cmd, r.pipe, r.fd = cmd, rd, fd
	r.parser = newDumpParser(events)
	r.buf = make([]byte, readChunk)
	if err := r.loop.AddSource(fd, r.readable); err != nil {
		r.kill(cmd, rd)
		r.cmd, r.pipe, r.fd = nil, nil, -1
		return nil, err
	}
	r.svc.Log.Debug("registry monitor started", "pid", cmd.Process.Pid)
	return hookFunc(func() {
		if r.fd >= 0 {
			_ = r.loop.RemoveSource(r.fd)
		}
	}), nil
}

// readable drains the pipe. End of file means the monitor died, which is
// fatal for the loop iterating it.
func (r *registry) readable() error {
	for {
		n, err := unix.Read(r.fd, r.buf)
		switch {
		case errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("pipewire: read pw-dump: %w", err)
		case n == 0:
			return errors.New("pipewire: pw-dump exited")
		}
		if err := r.parser.Feed(r.buf[:n]); err != nil {
			return err
		}
	}
}

func (r *registry) kill(cmd *exec.Cmd, pipe *os.File) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	_ = pipe.Close()
}

func (r *registry) Destroy() error {
	if r.cmd == nil {
		return nil
	}
	r.kill(r.cmd, r.pipe)
	r.cmd, r.pipe, r.fd = nil, nil, -1
	return nil
}
