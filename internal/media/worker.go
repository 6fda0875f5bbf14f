package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// Stats are the running counters of a pipeline.
type Stats struct {
	PacketsRead        int64
	PacketsDropped     int64
	FramesDecoded      int64
	DecodeErrors       int64
	DegradedTimestamps int64
	FramesPresented    int64
	FramesDropped      int64
	AudioUnderruns     int64
}

// streamPipe is everything one selected stream needs between the container
// and its FrameQueue.
type streamPipe struct {
	info      StreamInfo
	packets   *PacketQueue
	frames    *FrameQueue
	decoder   Decoder
	converter Converter

	ended bool

	// end time of the last audio chunk pushed, for the converter's tail
	tail   float64
	tailOK bool
}

// worker is the single demux/decode goroutine. It is the only writer of the
// packet queues and frame queues.
type worker struct {
	container Container
	streams   []*streamPipe
	clock     *Clock
	idle      time.Duration

	packetsRead    atomic.Int64
	packetsDropped atomic.Int64
	framesDecoded  atomic.Int64
	decodeErrors   atomic.Int64
	degraded       atomic.Int64
}

func newWorker(c Container, streams []*streamPipe, clock *Clock, idle time.Duration) *worker {
	return &worker{
		container: c,
		streams:   streams,
		clock:     clock,
		idle:      idle,
	}
}

// Run reads and decodes until every stream drained, a queue is aborted or ctx
// is done. Abort is not an error.
func (w *worker) Run(ctx context.Context) error {
	err := w.run(ctx)
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		log.Debug().Str("component", "worker").Msg("worker aborted")
		return nil
	}
	return err
}

func (w *worker) run(ctx context.Context) error {
	eof := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !eof {
			var err error
			if eof, err = w.readPacket(); err != nil {
				return err
			}
		}

		busy := false
		for _, s := range w.streams {
			worked, err := w.decodeNext(ctx, s)
			if err != nil {
				return err
			}
			busy = busy || worked
		}

		if eof && w.allEnded() {
			for _, s := range w.streams {
				s.frames.Finish()
			}
			log.Debug().Str("component", "worker").Msg("all streams drained")
			return nil
		}

		if !busy {
			sleepContext(ctx, w.idle)
		}
	}
}

// readPacket reads and routes one packet. It returns true once the container
// is exhausted, after queueing an end-of-stream packet for every stream.
func (w *worker) readPacket() (bool, error) {
	pkt, err := w.container.ReadPacket()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Str("component", "worker").Msg("reading packet failed, ending stream")
		} else {
			log.Debug().Str("component", "worker").Msg("end of container")
		}

		for _, s := range w.streams {
			if err := s.packets.Push(endOfStreamPacket(s.info.Index)); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	w.packetsRead.Add(1)

	for _, s := range w.streams {
		if s.info.Index == pkt.StreamIndex {
			return false, s.packets.Push(pkt)
		}
	}

	w.packetsDropped.Add(1)
	return false, nil
}

// decodeNext feeds at most one queued packet to the stream's decoder and
// drains every frame it produces. worked is false when nothing was queued.
func (w *worker) decodeNext(ctx context.Context, s *streamPipe) (worked bool, err error) {
	if s.ended {
		return false, nil
	}

	pkt, _, ok, err := s.packets.Pop(false)
	if err != nil || !ok {
		return false, err
	}

	// frames live in the frame queue's epoch, which is what consumers compare
	serial := s.frames.Serial()

	if err := s.decoder.SendPacket(pkt); err != nil {
		if pkt.EndOfStream {
			return true, w.endStream(s, serial)
		}

		w.decodeErrors.Add(1)
		log.Warn().Err(err).
			Str("component", "worker").
			Str("kind", s.info.Kind.String()).
			Msg("sending packet failed, skipping")
		return true, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return true, err
		}

		raw, err := s.decoder.ReceiveFrame()
		switch {
		case errors.Is(err, ErrNeedMoreInput):
			if pkt.EndOfStream {
				return true, w.endStream(s, serial)
			}
			return true, nil
		case errors.Is(err, ErrEndOfStream):
			return true, w.endStream(s, serial)
		case err != nil:
			w.decodeErrors.Add(1)
			log.Warn().Err(err).
				Str("component", "worker").
				Str("kind", s.info.Kind.String()).
				Msg("receiving frame failed, skipping packet")
			return true, nil
		}

		if err := w.convertAndPush(s, raw, serial); err != nil {
			return true, err
		}
	}
}

func (w *worker) convertAndPush(s *streamPipe, raw RawFrame, serial int) error {
	pts, degraded := w.timestamp(raw)

	f, err := s.converter.Convert(raw)
	raw.Free()
	if err != nil {
		w.decodeErrors.Add(1)
		log.Warn().Err(err).
			Str("component", "worker").
			Str("kind", s.info.Kind.String()).
			Msg("converting frame failed, skipping")
		return nil
	}

	if f.Audio != nil && HasPTS(pts) {
		pts -= f.Audio.Lead
	}

	f.Kind = s.info.Kind
	f.PTS = pts
	f.Degraded = degraded
	f.Serial = serial

	w.framesDecoded.Add(1)

	return w.push(s, f)
}

func (w *worker) push(s *streamPipe, f *Frame) error {
	if f.Audio != nil && HasPTS(f.PTS) {
		s.tail = f.PTS + f.Audio.Seconds()
		s.tailOK = true
	}

	if err := s.frames.Push(f); err != nil {
		f.Release()
		return err
	}
	return nil
}

// endStream marks s drained and pushes whatever its converter still buffers.
func (w *worker) endStream(s *streamPipe, serial int) error {
	s.ended = true

	fl, ok := s.converter.(TailFlusher)
	if !ok {
		return nil
	}

	f, err := fl.Flush()
	if err != nil {
		w.decodeErrors.Add(1)
		log.Warn().Err(err).
			Str("component", "worker").
			Str("kind", s.info.Kind.String()).
			Msg("flushing converter failed")
		return nil
	}
	if f == nil {
		return nil
	}

	f.Kind = s.info.Kind
	f.Serial = serial
	f.PTS = NoPTS
	if s.tailOK {
		f.PTS = s.tail
	}

	log.Debug().
		Str("component", "worker").
		Str("kind", s.info.Kind.String()).
		Float64("pts", f.PTS).
		Msg("converter tail flushed")

	return w.push(s, f)
}

// timestamp picks the frame time: the decoder's pts, then its best-effort
// guess, then the audio clock. Anything but the first is flagged degraded.
func (w *worker) timestamp(raw RawFrame) (float64, bool) {
	pts, bestEffort := raw.Timestamps()
	if HasPTS(pts) {
		return pts, false
	}

	w.degraded.Add(1)

	if HasPTS(bestEffort) {
		log.Debug().Str("component", "worker").Float64("pts", bestEffort).Msg("using best-effort timestamp")
		return bestEffort, true
	}

	var clock float64
	if w.clock != nil {
		clock, _ = w.clock.Time()
	}
	log.Warn().Str("component", "worker").Float64("pts", clock).Msg("frame has no timestamp, using audio clock")
	return clock, true
}

func (w *worker) allEnded() bool {
	for _, s := range w.streams {
		if !s.ended {
			return false
		}
	}
	return true
}

func (w *worker) fillStats(st *Stats) {
	st.PacketsRead = w.packetsRead.Load()
	st.PacketsDropped = w.packetsDropped.Load()
	st.FramesDecoded = w.framesDecoded.Load()
	st.DecodeErrors = w.decodeErrors.Load()
	st.DegradedTimestamps = w.degraded.Load()
}
