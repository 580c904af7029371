// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/fake"
	"github.com/momentics/hioload-pw/loop"
	"github.com/momentics/hioload-pw/pool"
)

var vga = api.StreamFormat{
	MediaType:    api.MediaTypeVideo,
	MediaSubtype: api.MediaSubtypeRaw,
	Format:       api.VideoFormatBGRx,
	Size:         api.Rectangle{Width: 640, Height: 480},
	Framerate:    api.Fraction{Num: 30, Denom: 1},
}

type harness struct {
	rt      *loop.Runtime
	svc     *fake.Service
	bridge  *Bridge
	metrics *control.Metrics
	events  []api.Event
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	m, err := control.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	rt, err := loop.New(loop.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	h := &harness{rt: rt, svc: fake.NewService(), metrics: m}
	h.bridge, err = Attach(rt, h.svc, "42", DefaultConstraints(), opts...)
	require.NoError(t, err)
	rt.Events().HandleAll(func(ev api.Event) { h.events = append(h.events, ev) })
	require.NoError(t, rt.Start())
	return h
}

// sync waits until everything injected so far has run on the worker.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, h.rt.Invoke(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not catch up")
	}
	h.rt.Events().Drain()
}

func TestAttach_ConnectsCaptureStream(t *testing.T) {
	h := newHarness(t, WithName("cam"), WithProperties(map[string]string{"media.role": "Screen"}))
	st := h.svc.Stream()
	require.NotNil(t, st)

	connected, dir, target, flags, params := st.Connection()
	assert.True(t, connected)
	assert.Equal(t, api.DirectionInput, dir)
	assert.Equal(t, "42", target)
	assert.Equal(t, api.StreamFlagAutoconnect|api.StreamFlagMapBuffers, flags)
	assert.Equal(t, DefaultConstraints(), params)
	assert.Equal(t, "cam", st.Name())
	assert.Equal(t, map[string]string{
		"media.type":      "Video",
		"media.category":  "Capture",
		"media.role":      "Screen",
		"priority.driver": "10000",
	}, st.Props())

	_, ok := h.bridge.Format()
	assert.False(t, ok)
}

func TestFormat_AcceptedProposalPostsFormatChanged(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Stream().Propose(vga))
	h.sync(t)

	f, ok := h.bridge.Format()
	require.True(t, ok)
	assert.Equal(t, vga, f)
	require.Len(t, h.events, 1)
	assert.Equal(t, api.EventFormatChanged, h.events[0].Kind)
	assert.Equal(t, vga, h.events[0].Format)
}

func TestFormat_NonRawVideoNeverProducesFrames(t *testing.T) {
	h := newHarness(t)
	st := h.svc.Stream()

	audio := vga
	audio.MediaType = api.MediaTypeAudio
	mjpg := vga
	mjpg.MediaSubtype = api.MediaSubtypeMJPG
	huge := vga
	huge.Size = api.Rectangle{Width: 8192, Height: 8192}

	for _, f := range []api.StreamFormat{audio, mjpg, huge} {
		require.NoError(t, st.Propose(f))
		require.NoError(t, st.PushFrame([]byte{1, 2, 3}))
	}
	h.sync(t)

	_, ok := h.bridge.Format()
	assert.False(t, ok)
	assert.Empty(t, h.events)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.FormatsRejected))
	assert.Zero(t, st.Outstanding())
	assert.Equal(t, 3, st.Requeued())
}

func TestProcess_CopiesChunkIntoFrame(t *testing.T) {
	p := pool.NewFramePool(2)
	h := newHarness(t, WithPool(p))
	st := h.svc.Stream()

	require.NoError(t, st.Propose(vga))
	require.NoError(t, st.PushChunk([]byte("xxframe-oneyy"), 2, 9))
	require.NoError(t, st.PushFrame([]byte("frame-two")))
	h.sync(t)

	require.Len(t, h.events, 3)
	first, second := h.events[1].Frame, h.events[2].Frame
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "frame-one", string(first.Data))
	assert.Equal(t, 9, first.Size)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, vga, second.Format)
	assert.Zero(t, st.Outstanding())

	first.Release()
	second.Release()
	assert.EqualValues(t, 2, p.Stats().Returned)
}

func TestProcess_SkipsWithoutRequeueLeak(t *testing.T) {
	h := newHarness(t)
	st := h.svc.Stream()

	require.NoError(t, st.Kick())
	require.NoError(t, st.PushFrame([]byte("early")))
	require.NoError(t, st.Propose(vga))
	require.NoError(t, st.PushEmpty())
	h.sync(t)

	require.Len(t, h.events, 1, "only the format change")
	assert.Zero(t, st.Outstanding())
	assert.Equal(t, 2, st.Requeued())
	for reason, want := range map[string]float64{"no_buffer": 1, "no_format": 1, "empty": 1} {
		assert.Equal(t, want, testutil.ToFloat64(h.metrics.FramesSkipped.WithLabelValues(reason)), reason)
	}
}

func TestProcess_ConsumerGetsViewOnWorker(t *testing.T) {
	var views []string
	var formats []api.StreamFormat
	h := newHarness(t, WithConsumer(func(view []byte, f api.StreamFormat) {
		views = append(views, string(view))
		formats = append(formats, f)
	}))
	st := h.svc.Stream()

	require.NoError(t, st.Propose(vga))
	require.NoError(t, st.PushFrame([]byte("zero-copy")))
	h.sync(t)

	require.NoError(t, h.rt.Stop())
	assert.Equal(t, []string{"zero-copy"}, views)
	assert.Equal(t, []api.StreamFormat{vga}, formats)
	require.Len(t, h.events, 1)
	assert.Equal(t, api.EventFormatChanged, h.events[0].Kind)
}

func TestAttach_Failures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("invalid constraints", func(t *testing.T) {
		rt, err := loop.New()
		require.NoError(t, err)
		defer rt.Close()
		c := DefaultConstraints()
		c.Formats = nil
		_, err = Attach(rt, fake.NewService(), api.TargetAny, c)
		assert.ErrorIs(t, err, api.ErrInvalidArgument)
	})

	t.Run("after start", func(t *testing.T) {
		svc := fake.NewService()
		rt, err := loop.New()
		require.NoError(t, err)
		defer rt.Close()
		require.NoError(t, rt.Start())
		_, err = Attach(rt, svc, api.TargetAny, DefaultConstraints())
		assert.ErrorIs(t, err, api.ErrAlreadyRunning)
		assert.Zero(t, svc.Connects())
	})

	for name, set := range map[string]func(*fake.Service){
		"new stream": func(s *fake.Service) { s.StreamErr = boom },
		"connect":    func(s *fake.Service) { s.StreamConnectErr = boom },
	} {
		t.Run(name, func(t *testing.T) {
			svc := fake.NewService()
			set(svc)
			rt, err := loop.New()
			require.NoError(t, err)
			defer rt.Close()
			_, err = Attach(rt, svc, api.TargetAny, DefaultConstraints())
			assert.ErrorIs(t, err, api.ErrStreamUnavailable)
			assert.ErrorIs(t, err, boom)
			assert.Zero(t, svc.Registrations())
		})
	}
}

func TestClose_DestroysStream(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rt.Close())
	assert.True(t, h.svc.Stream().Destroyed())
	assert.Zero(t, h.svc.Registrations())
}

func TestFormat_ClearedFormatStopsFrames(t *testing.T) {
	h := newHarness(t)
	st := h.svc.Stream()

	require.NoError(t, st.Propose(vga))
	require.NoError(t, st.ClearFormat())
	require.NoError(t, st.PushFrame([]byte("stale")))
	h.sync(t)

	_, ok := h.bridge.Format()
	assert.False(t, ok)
	require.Len(t, h.events, 1, "only the format change")
	assert.Equal(t, api.EventFormatChanged, h.events[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FramesSkipped.WithLabelValues("no_format")))
	assert.Zero(t, st.Outstanding())

	qvga := vga
	qvga.Size = api.Rectangle{Width: 320, Height: 240}
	require.NoError(t, st.Propose(qvga))
	require.NoError(t, st.PushFrame([]byte("fresh")))
	h.sync(t)

	require.Len(t, h.events, 3)
	assert.Equal(t, api.EventFrameReady, h.events[2].Kind)
	assert.Equal(t, qvga, h.events[2].Frame.Format)
	h.events[2].Frame.Release()
}
