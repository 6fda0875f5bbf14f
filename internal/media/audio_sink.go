package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// AudioSink adapts the audio FrameQueue to a pull-based output device. The
// device calls Read from its own goroutine whenever it wants more bytes; every
// call is answered in full, with silence when no samples are ready in time.
type AudioSink struct {
	queue *FrameQueue
	clock *Clock
	wait  time.Duration

	mutex   sync.Mutex
	current *Frame
	offset  int
	// byte rate of the last played frame, used to time silence
	rate float64

	underruns atomic.Int64
	drained   chan struct{}
	drainOnce sync.Once
}

func NewAudioSink(queue *FrameQueue, clock *Clock, wait time.Duration) *AudioSink {
	return &AudioSink{
		queue:   queue,
		clock:   clock,
		wait:    wait,
		drained: make(chan struct{}),
	}
}

// Read implements io.Reader. It always fills p and never returns an error, so
// the output device keeps running through underruns.
func (s *AudioSink) Read(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := 0
	for n < len(p) {
		if s.current == nil {
			if !s.next() {
				break
			}
			continue
		}

		data := s.current.Audio.Data
		copied := copy(p[n:], data[s.offset:])
		s.offset += copied
		n += copied

		s.advanceClock()

		if s.offset >= len(data) {
			s.current.Release()
			s.current = nil
		}
	}

	if n < len(p) {
		clear(p[n:])
		if !s.isDrained() {
			s.underruns.Add(1)
			s.advanceSilence(len(p) - n)
		}
	}

	return len(p), nil
}

// next pops the following frame. It returns false when nothing arrived within
// the wait budget.
func (s *AudioSink) next() bool {
	f, err := s.queue.PopTimeout(s.wait)
	if errors.Is(err, ErrEndOfStream) {
		s.drainOnce.Do(func() {
			log.Debug().Str("component", "audio-sink").Msg("audio drained")
			// video left over past the last sample is paced by its own timestamps
			s.clock.Reset(s.clock.Serial())
			close(s.drained)
		})
		return false
	}
	if f == nil {
		return false
	}

	if f.Audio == nil || len(f.Audio.Data) == 0 {
		f.Release()
		return true
	}

	s.current = f
	s.offset = 0
	if bps := f.Audio.BytesPerSecond(); bps > 0 {
		s.rate = bps
	}
	return true
}

func (s *AudioSink) advanceClock() {
	f := s.current
	if f.Serial != s.queue.Serial() || !HasPTS(f.PTS) {
		return
	}

	pts := f.PTS
	if bps := f.Audio.BytesPerSecond(); bps > 0 {
		pts += float64(s.offset) / bps
	}
	s.clock.Set(pts, f.Serial)
}

// advanceSilence keeps the clock running while the device plays padding, so
// video queued past the end of a shorter audio track is still released.
func (s *AudioSink) advanceSilence(n int) {
	if s.rate <= 0 {
		return
	}
	s.clock.Advance(float64(n)/s.rate, s.queue.Serial())
}

// Flush drops any partially played frame.
func (s *AudioSink) Flush() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
	s.offset = 0
	s.rate = 0
}

// Drained is closed once the audio queue reached end of stream and every
// queued sample has been handed to the device.
func (s *AudioSink) Drained() <-chan struct{} {
	return s.drained
}

func (s *AudioSink) isDrained() bool {
	select {
	case <-s.drained:
		return true
	default:
		return false
	}
}

// Underruns returns how many reads had to be padded with silence.
func (s *AudioSink) Underruns() int64 {
	return s.underruns.Load()
}
