package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	VideoQueueSize int
	AudioQueueSize int

	// SinkWait bounds how long the audio device waits for a frame before
	// padding with silence.
	SinkWait time.Duration
	// WorkerIdle is the worker's pause when an iteration decoded nothing.
	WorkerIdle time.Duration

	Presenter PresenterConfig
}

func DefaultConfig() Config {
	return Config{
		VideoQueueSize: 5,
		AudioQueueSize: 16,
		SinkWait:       5 * time.Millisecond,
		WorkerIdle:     time.Millisecond,
		Presenter: PresenterConfig{
			PopTimeout:   10 * time.Millisecond,
			HoldPoll:     10 * time.Millisecond,
			Slack:        100 * time.Millisecond,
			NominalDelay: 40 * time.Millisecond,
		},
	}
}

// Collaborators are the platform pieces a Media drives. Surface and Events
// may be nil for audio-only playback; Output may be nil for video-only.
type Collaborators struct {
	Opener  Opener
	Output  AudioOutput
	Surface Surface
	Events  EventSource
}

// Media owns one playback session: container, per-stream decode pipes, the
// worker goroutine, the audio sink and the video presenter.
type Media struct {
	cfg   Config
	colls Collaborators

	closer    *astikit.Closer
	container Container
	video     *streamPipe
	audio     *streamPipe

	clock     *Clock
	sink      *AudioSink
	presenter *VideoPresenter
	worker    *worker

	cancel        context.CancelFunc
	group         *errgroup.Group
	outputStarted bool

	stopOnce sync.Once
	stopErr  error
}

func New(cfg Config, colls Collaborators) *Media {
	return &Media{
		cfg:   cfg,
		colls: colls,
		clock: NewClock(),
	}
}

// Start opens path and starts decoding and audio output. On error everything
// acquired so far has already been released.
func (m *Media) Start(ctx context.Context, path string) (err error) {
	m.closer = astikit.NewCloser()
	defer func() {
		if err != nil {
			m.closer.Close()
			m.closer = nil
		}
	}()

	c, err := m.colls.Opener.OpenContainer(path)
	if err != nil {
		return fmt.Errorf("media: opening container failed: %w", err)
	}
	m.closer.Add(c.Close)
	m.container = c

	videoInfo, audioInfo := SelectStreams(c.Streams())
	if audioInfo != nil && m.colls.Output == nil {
		audioInfo = nil
	}
	if videoInfo != nil && m.colls.Surface == nil {
		videoInfo = nil
	}
	if videoInfo == nil && audioInfo == nil {
		return fmt.Errorf("media: %s: %w", path, ErrNoStream)
	}

	var pipes []*streamPipe
	if videoInfo != nil {
		if m.video, err = m.openPipe(*videoInfo, m.cfg.VideoQueueSize); err != nil {
			return err
		}
		pipes = append(pipes, m.video)
	}
	if audioInfo != nil {
		if m.audio, err = m.openPipe(*audioInfo, m.cfg.AudioQueueSize); err != nil {
			return err
		}
		pipes = append(pipes, m.audio)
	}

	for _, p := range pipes {
		p.packets.Start()
		p.frames.Start()
	}

	var clock *Clock
	if m.audio != nil {
		m.clock.Reset(m.audio.frames.Serial())
		m.sink = NewAudioSink(m.audio.frames, m.clock, m.cfg.SinkWait)
		clock = m.clock
	}
	if m.video != nil {
		m.presenter = NewVideoPresenter(m.video.frames, clock, m.colls.Surface, m.colls.Events, m.cfg.Presenter)
	}

	wctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.worker = newWorker(c, pipes, clock, m.cfg.WorkerIdle)
	m.group, wctx = errgroup.WithContext(wctx)
	m.group.Go(func() error {
		return m.worker.Run(wctx)
	})

	if m.sink != nil {
		if err := m.colls.Output.Start(m.sink); err != nil {
			m.abort()
			_ = m.group.Wait()
			return fmt.Errorf("media: starting audio output failed: %w", err)
		}
		m.outputStarted = true
	}

	log.Info().
		Str("path", path).
		Bool("video", m.video != nil).
		Bool("audio", m.audio != nil).
		Msg("playback started")

	return nil
}

func (m *Media) openPipe(info StreamInfo, depth int) (*streamPipe, error) {
	d, err := m.colls.Opener.OpenDecoder(m.container, info)
	if err != nil {
		return nil, fmt.Errorf("media: opening %s decoder failed: %w", info.Kind, err)
	}
	m.closer.Add(d.Close)

	cv, err := m.colls.Opener.OpenConverter(info)
	if err != nil {
		return nil, fmt.Errorf("media: opening %s converter failed: %w", info.Kind, err)
	}
	m.closer.Add(cv.Close)

	log.Debug().
		Int("index", info.Index).
		Str("kind", info.Kind.String()).
		Str("codec", info.Codec).
		Msg("stream selected")

	return &streamPipe{
		info:      info,
		packets:   NewPacketQueue(),
		frames:    NewFrameQueue(depth),
		decoder:   d,
		converter: cv,
	}, nil
}

// SelectStreams returns the first video and the first audio stream, either of
// which may be nil.
func SelectStreams(streams []StreamInfo) (video, audio *StreamInfo) {
	for i := range streams {
		s := &streams[i]
		switch {
		case s.Kind == KindVideo && video == nil:
			video = s
		case s.Kind == KindAudio && audio == nil:
			audio = s
		}
	}
	return video, audio
}

// Run plays until the media ends, a quit event arrives or ctx is done. With
// video it drives the presenter on the calling goroutine, then waits for the
// audio to drain. A quit request is not reported as an error.
func (m *Media) Run(ctx context.Context) error {
	if m.presenter != nil {
		err := m.presenter.Run(ctx)
		switch {
		case errors.Is(err, ErrQuit), errors.Is(err, ErrAborted):
			return nil
		case err != nil:
			return err
		}
	}

	if m.sink == nil {
		return nil
	}

	return m.waitDrained(ctx)
}

func (m *Media) waitDrained(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Presenter.PopTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-m.sink.Drained():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.quitRequested() {
				return nil
			}
		}
	}
}

func (m *Media) quitRequested() bool {
	if m.colls.Events == nil {
		return false
	}
	for {
		ev, ok := m.colls.Events.Poll()
		if !ok {
			return false
		}
		if ev.Type == EventQuit || ev.Type == EventKey {
			return true
		}
	}
}

func (m *Media) abort() {
	for _, p := range m.pipes() {
		p.packets.Abort()
		p.frames.Abort()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Media) pipes() []*streamPipe {
	var ps []*streamPipe
	if m.video != nil {
		ps = append(ps, m.video)
	}
	if m.audio != nil {
		ps = append(ps, m.audio)
	}
	return ps
}

// Stop tears the session down. It is safe to call more than once and from any
// goroutine; later calls return the first call's result.
func (m *Media) Stop() error {
	m.stopOnce.Do(func() {
		if m.closer == nil {
			return
		}

		m.abort()

		if m.group != nil {
			if err := m.group.Wait(); err != nil {
				m.stopErr = fmt.Errorf("media: worker failed: %w", err)
			}
		}

		if m.outputStarted {
			if err := m.colls.Output.Stop(); err != nil {
				log.Warn().Err(err).Msg("stopping audio output failed")
			}
		}

		if m.sink != nil {
			m.sink.Flush()
		}
		for _, p := range m.pipes() {
			p.packets.Flush()
			p.frames.Flush()
		}

		if err := m.closer.Close(); err != nil {
			log.Warn().Err(err).Msg("closing media failed")
		}

		log.Info().Msg("playback stopped")
	})
	return m.stopErr
}

// Stats returns a snapshot of the pipeline counters.
func (m *Media) Stats() Stats {
	var st Stats
	if m.worker != nil {
		m.worker.fillStats(&st)
	}
	if m.presenter != nil {
		st.FramesPresented = m.presenter.Presented()
		st.FramesDropped = m.presenter.Dropped()
	}
	if m.sink != nil {
		st.AudioUnderruns = m.sink.Underruns()
	}
	return st
}

// Streams reports the streams being played.
func (m *Media) Streams() []StreamInfo {
	var out []StreamInfo
	for _, p := range m.pipes() {
		out = append(out, p.info)
	}
	return out
}
