package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func avContainer() *fakeContainer {
	c := &fakeContainer{streams: []StreamInfo{testVideoStream, testAudioStream}}
	for i := 0; i < 10; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 1, PTS: int64(i * 20), Data: []byte{0}})
		if i%2 == 0 {
			c.packets = append(c.packets, &Packet{StreamIndex: 0, PTS: int64(i * 20), Data: []byte{0}})
		}
	}
	return c
}

func TestMediaPlaysInSync(t *testing.T) {
	opener := &fakeOpener{container: avContainer()}
	surface := &fakeSurface{}
	output := &fakeOutput{chunk: 10, period: 10 * time.Millisecond}

	m := New(DefaultConfig(), Collaborators{
		Opener:  opener,
		Output:  output,
		Surface: surface,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx, "sync.mp4"))
	require.NoError(t, m.Run(ctx))
	require.NoError(t, m.Stop())

	pts := surface.PTS()
	require.Len(t, pts, 5)
	for i, v := range pts {
		assert.InDelta(t, float64(i)*0.04, v, 1e-9)
	}

	st := m.Stats()
	assert.Equal(t, int64(5), st.FramesPresented)
	assert.Zero(t, st.FramesDropped)
	assert.Equal(t, int64(15), st.FramesDecoded)
	assert.Zero(t, st.DecodeErrors)

	assert.True(t, opener.container.isClosed())
	assert.Equal(t, []string{
		"audio-converter",
		"audio-decoder",
		"video-converter",
		"video-decoder",
	}, opener.closeLog)
}

func TestMediaVideoOutlastsAudio(t *testing.T) {
	c := &fakeContainer{streams: []StreamInfo{testVideoStream, testAudioStream}}
	for i := 0; i < 5; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 1, PTS: int64(i * 20), Data: []byte{0}})
	}
	for i := 0; i < 25; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 0, PTS: int64(i * 40), Data: []byte{0}})
	}

	surface := &fakeSurface{}
	m := New(DefaultConfig(), Collaborators{
		Opener:  &fakeOpener{container: c},
		Output:  &fakeOutput{chunk: 10, period: 10 * time.Millisecond},
		Surface: surface,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx, "short-audio.mp4"))
	require.NoError(t, m.Run(ctx))
	require.NoError(t, m.Stop())

	st := m.Stats()
	assert.Equal(t, int64(25), st.FramesPresented+st.FramesDropped)
	assert.Positive(t, st.AudioUnderruns)

	pts := surface.PTS()
	require.NotEmpty(t, pts)
	assert.InDelta(t, 0.96, pts[len(pts)-1], 1e-9)
}

func TestMediaHoldsFarFutureFrame(t *testing.T) {
	c := avContainer()
	for _, p := range c.packets {
		if p.StreamIndex == 0 && p.PTS == 80 {
			p.PTS = 5000
		}
	}

	surface := &fakeSurface{}
	m := New(DefaultConfig(), Collaborators{
		Opener:  &fakeOpener{container: c},
		Output:  &fakeOutput{chunk: 10, period: 10 * time.Millisecond},
		Surface: surface,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	require.NoError(t, m.Start(ctx, "corrupt.mp4"))

	start := time.Now()
	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	require.NoError(t, m.Stop())

	pts := surface.PTS()
	require.Len(t, pts, 2)
	assert.InDelta(t, 0.0, pts[0], 1e-9)
	assert.InDelta(t, 0.04, pts[1], 1e-9)

	st := m.Stats()
	assert.Zero(t, st.FramesDropped)
	assert.Equal(t, int64(2), st.FramesPresented)
}

func TestMediaAudioOnly(t *testing.T) {
	c := &fakeContainer{streams: []StreamInfo{testAudioStream}}
	for i := 0; i < 5; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 1, PTS: int64(i * 20)})
	}

	output := &fakeOutput{chunk: 20, period: 5 * time.Millisecond}
	m := New(DefaultConfig(), Collaborators{Opener: &fakeOpener{container: c}, Output: output})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx, "tone.wav"))
	require.NoError(t, m.Run(ctx))
	require.NoError(t, m.Stop())

	streams := m.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, KindAudio, streams[0].Kind)

	output.mutex.Lock()
	defer output.mutex.Unlock()
	assert.GreaterOrEqual(t, output.pulled, 100)
}

func TestMediaVideoOnly(t *testing.T) {
	c := &fakeContainer{streams: []StreamInfo{testVideoStream}}
	for i := 0; i < 3; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 0, PTS: int64(i * 10)})
	}

	surface := &fakeSurface{}
	m := New(DefaultConfig(), Collaborators{Opener: &fakeOpener{container: c}, Surface: surface})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx, "clip.y4m"))
	require.NoError(t, m.Run(ctx))
	require.NoError(t, m.Stop())

	assert.Len(t, surface.PTS(), 3)
}

func TestMediaStartNoStream(t *testing.T) {
	opener := &fakeOpener{container: &fakeContainer{}}
	m := New(DefaultConfig(), Collaborators{Opener: opener, Output: &fakeOutput{}, Surface: &fakeSurface{}})

	err := m.Start(context.Background(), "empty.bin")
	assert.ErrorIs(t, err, ErrNoStream)
	assert.True(t, opener.container.isClosed())
	assert.NoError(t, m.Stop())
}

func TestMediaStartContainerError(t *testing.T) {
	openErr := errors.New("no such file")
	m := New(DefaultConfig(), Collaborators{Opener: &fakeOpener{containerErr: openErr}})

	err := m.Start(context.Background(), "missing.mp4")
	assert.ErrorIs(t, err, openErr)
	assert.NoError(t, m.Stop())
}

func TestMediaStartUnwindsOnDecoderError(t *testing.T) {
	decErr := errors.New("unsupported codec")
	opener := &fakeOpener{
		container:  avContainer(),
		decoderErr: map[FrameKind]error{KindAudio: decErr},
	}
	m := New(DefaultConfig(), Collaborators{Opener: opener, Output: &fakeOutput{}, Surface: &fakeSurface{}})

	err := m.Start(context.Background(), "broken.mp4")
	assert.ErrorIs(t, err, decErr)

	assert.True(t, opener.container.isClosed())
	assert.Equal(t, []string{"video-converter", "video-decoder"}, opener.closeLog)

	assert.NoError(t, m.Stop())
	assert.Len(t, opener.closeLog, 2)
}

func TestMediaStartUnwindsOnOutputError(t *testing.T) {
	outErr := errors.New("device busy")
	opener := &fakeOpener{container: avContainer()}
	m := New(DefaultConfig(), Collaborators{
		Opener:  opener,
		Output:  &fakeOutput{startErr: outErr},
		Surface: &fakeSurface{},
	})

	err := m.Start(context.Background(), "sync.mp4")
	assert.ErrorIs(t, err, outErr)
	assert.True(t, opener.container.isClosed())
	assert.Len(t, opener.closeLog, 4)
}

func TestMediaStopWhileWorkerBlocked(t *testing.T) {
	c := &fakeContainer{streams: []StreamInfo{testVideoStream}}
	for i := 0; i < 50; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 0, PTS: int64(i * 40)})
	}

	cfg := DefaultConfig()
	m := New(cfg, Collaborators{Opener: &fakeOpener{container: c}, Surface: &fakeSurface{}})
	require.NoError(t, m.Start(context.Background(), "long.mp4"))

	require.Eventually(t, func() bool {
		return m.video.frames.Len() == cfg.VideoQueueSize
	}, time.Second, time.Millisecond)

	stopped := make(chan error, 1)
	go func() {
		stopped <- m.Stop()
	}()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}

	assert.True(t, c.isClosed())
	assert.NoError(t, m.Stop())
}

func TestMediaRunStopsOnQuit(t *testing.T) {
	events := &fakeEvents{}
	events.Push(Event{Type: EventQuit})

	m := New(DefaultConfig(), Collaborators{
		Opener:  &fakeOpener{container: avContainer()},
		Output:  &fakeOutput{chunk: 10, period: 10 * time.Millisecond},
		Surface: &fakeSurface{},
		Events:  events,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx, "sync.mp4"))
	defer m.Stop()

	start := time.Now()
	require.NoError(t, m.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSelectStreams(t *testing.T) {
	streams := []StreamInfo{
		{Index: 0, Kind: KindAudio},
		{Index: 1, Kind: KindVideo},
		{Index: 2, Kind: KindAudio},
		{Index: 3, Kind: KindVideo},
	}

	video, audio := SelectStreams(streams)
	require.NotNil(t, video)
	require.NotNil(t, audio)
	assert.Equal(t, 1, video.Index)
	assert.Equal(t, 0, audio.Index)

	video, audio = SelectStreams(streams[:1])
	assert.Nil(t, video)
	assert.NotNil(t, audio)
}
