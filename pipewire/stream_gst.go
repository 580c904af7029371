//go:build gst

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/momentics/hioload-pw/api"
)

// maxPending bounds samples waiting for the loop; the oldest is dropped.
const maxPending = 2

func initStreams() { gst.Init(nil) }

type sample struct {
	buffer *gst.Buffer
	data   []byte
	caps   string
}

// gstStream captures from pipewiresrc through an appsink. Samples arrive on a
// GStreamer streaming thread and are handed to the loop through Invoke.
type gstStream struct {
	svc   *Service
	loop  api.Loop
	name  string
	props map[string]string

	mu       sync.Mutex
	listener *api.StreamEvents
	pending  []*sample
	pipeline *gst.Pipeline

	lastCaps string // loop thread only
}

func newStream(svc *Service, loop api.Loop, name string, props map[string]string) (api.Stream, error) {
	return &gstStream{svc: svc, loop: loop, name: name, props: props}, nil
}

func (s *gstStream) AddListener(events api.StreamEvents) (api.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil, errors.New("pipewire: stream listener already added")
	}
	s.listener = &events
	return hookFunc(func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}), nil
}

func (s *gstStream) Connect(dir api.Direction, target string, flags api.StreamFlags, params api.FormatConstraints) error {
	if dir != api.DirectionInput {
		return api.Wrap(api.ErrNotSupported, "pipewire.Stream.Connect", errors.New("only capture streams"))
	}
	pipeline, err := gst.NewPipeline(s.name)
	if err != nil {
		return fmt.Errorf("pipewire: create pipeline: %w", err)
	}
	src, err := gst.NewElement("pipewiresrc")
	if err != nil {
		return fmt.Errorf("pipewire: create pipewiresrc: %w", err)
	}
	if target != api.TargetAny {
		src.SetProperty("target-object", target)
	}
	src.SetProperty("client-name", s.name)
	src.SetProperty("autoconnect", flags&api.StreamFlagAutoconnect != 0)
	if len(s.props) > 0 {
		src.SetProperty("stream-properties", gst.NewStructureFromString(streamProps(s.props)))
	}

	filter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("pipewire: create capsfilter: %w", err)
	}
	filter.SetProperty("caps", gst.NewCapsFromString(capsFilter(params)))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("pipewire: create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", maxPending)
	sink.SetProperty("drop", true)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: s.onSample})

	if err := pipeline.AddMany(src, filter, sink.Element); err != nil {
		return fmt.Errorf("pipewire: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, filter, sink.Element); err != nil {
		return fmt.Errorf("pipewire: link elements: %w", err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("pipewire: start pipeline: %w", err)
	}
	s.mu.Lock()
	s.pipeline = pipeline
	s.mu.Unlock()
	s.svc.Log.Debug("capture pipeline playing", "target", target, "caps", capsFilter(params))
	return nil
}

func streamProps(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("props")
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=(string)%q", k, props[k])
	}
	return b.String()
}

// onSample runs on a GStreamer streaming thread.
func (s *gstStream) onSample(sink *app.Sink) gst.FlowReturn {
	smp := sink.PullSample()
	if smp == nil {
		return gst.FlowOK
	}
	buf := smp.GetBuffer()
	if buf == nil {
		return gst.FlowOK
	}
	caps := ""
	if c := smp.GetCaps(); c != nil {
		caps = c.String()
	}
	var data []byte
	if mi := buf.Map(gst.MapRead); mi != nil {
		data = mi.Bytes()
	}

	s.mu.Lock()
	if len(s.pending) >= maxPending {
		s.pending[0].buffer.Unmap()
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, &sample{buffer: buf, data: data, caps: caps})
	s.mu.Unlock()

	if err := s.loop.Invoke(s.process); err != nil {
		// The sample stays pending for the next wakeup.
		s.svc.Log.Debug("capture wakeup not delivered", "error", err)
	}
	return gst.FlowOK
}

// process runs on the loop thread. A caps change is reported before the
// buffer carrying it is offered.
func (s *gstStream) process() {
	s.mu.Lock()
	ev := s.listener
	caps := ""
	if len(s.pending) > 0 {
		caps = s.pending[0].caps
	}
	s.mu.Unlock()
	if ev == nil {
		return
	}
	if caps != "" && caps != s.lastCaps {
		s.lastCaps = caps
		f, err := parseCaps(caps)
		switch {
		case err != nil:
			s.svc.Log.Debug("unparsed caps", "caps", caps, "error", err)
		case ev.ParamChanged != nil:
			ev.ParamChanged(api.ParamFormat, &f)
		}
	}
	if ev.Process != nil {
		ev.Process()
	}
}

func (s *gstStream) DequeueBuffer() *api.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	smp := s.pending[0]
	s.pending = s.pending[1:]
	return &api.Buffer{
		Datas:  []api.Data{{Data: smp.data, Chunk: api.Chunk{Size: uint32(len(smp.data))}}},
		Handle: smp,
	}
}

func (s *gstStream) QueueBuffer(b *api.Buffer) {
	if b == nil {
		return
	}
	if smp, ok := b.Handle.(*sample); ok {
		smp.buffer.Unmap()
	}
}

func (s *gstStream) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			return fmt.Errorf("pipewire: stop pipeline: %w", err)
		}
		s.pipeline = nil
	}
	for _, smp := range s.pending {
		smp.buffer.Unmap()
	}
	s.pending = nil
	return nil
}
