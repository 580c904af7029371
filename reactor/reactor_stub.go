//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Portable poller for platforms without epoll: only the invoke queue is
// supported, descriptor sources are rejected and InLoop is always false.

package reactor

import (
	"time"

	"github.com/momentics/hioload-pw/api"
)

type poller struct {
	wakeCh chan struct{}
	done   chan struct{}
}

func newPoller() (*poller, error) {
	return &poller{wakeCh: make(chan struct{}, 1), done: make(chan struct{})}, nil
}

func (p *poller) add(int) error    { return api.ErrNotSupported }
func (p *poller) remove(int) error { return nil }

func (p *poller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *poller) wait(timeout time.Duration) ([]int, bool, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-p.wakeCh:
		return nil, true, nil
	case <-timer:
		return nil, false, nil
	case <-p.done:
		return nil, false, api.ErrLoopClosed
	}
}

func (p *poller) close() error {
	close(p.done)
	return nil
}

func threadID() int64 { return 0 }
