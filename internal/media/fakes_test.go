package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// Timestamps in fake packets are milliseconds; a negative PTS means unknown.

type fakeContainer struct {
	mutex   sync.Mutex
	streams []StreamInfo
	packets []*Packet
	next    int
	readErr error
	closed  bool
}

func (c *fakeContainer) Streams() []StreamInfo {
	return c.streams
}

func (c *fakeContainer) ReadPacket() (*Packet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.next >= len(c.packets) {
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
	p := c.packets[c.next]
	c.next++
	return p, nil
}

func (c *fakeContainer) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
}

func (c *fakeContainer) isClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

type fakeRaw struct {
	pts, bestEffort float64
	freed           *int
}

func (r *fakeRaw) Timestamps() (float64, float64) {
	return r.pts, r.bestEffort
}

func (r *fakeRaw) Free() {
	if r.freed != nil {
		*r.freed++
	}
}

// fakeDecoder turns every packet into one raw frame.
type fakeDecoder struct {
	pending  []*fakeRaw
	eos      bool
	failPTS  map[int64]bool
	noBest   bool
	freed    int
	closed   bool
	closeLog *[]string
	name     string
}

func (d *fakeDecoder) SendPacket(p *Packet) error {
	if p.EndOfStream {
		d.eos = true
		return nil
	}
	if d.failPTS[p.PTS] {
		return errors.New("corrupt packet")
	}

	raw := &fakeRaw{pts: NoPTS, bestEffort: NoPTS, freed: &d.freed}
	if p.PTS >= 0 {
		raw.pts = float64(p.PTS) / 1000
	} else if !d.noBest && p.DTS >= 0 {
		raw.bestEffort = float64(p.DTS) / 1000
	}
	d.pending = append(d.pending, raw)
	return nil
}

func (d *fakeDecoder) ReceiveFrame() (RawFrame, error) {
	if len(d.pending) > 0 {
		r := d.pending[0]
		d.pending = d.pending[1:]
		return r, nil
	}
	if d.eos {
		return nil, ErrEndOfStream
	}
	return nil, ErrNeedMoreInput
}

func (d *fakeDecoder) Close() {
	d.closed = true
	if d.closeLog != nil {
		*d.closeLog = append(*d.closeLog, d.name)
	}
}

// fakeConverter makes 1x1 video frames or 20 ms of 1 kHz mono 8-bit audio.
// With tail set it holds that many audio bytes back until Flush.
type fakeConverter struct {
	kind     FrameKind
	lead     float64
	tail     int
	flushed  bool
	closeLog *[]string
	name     string
}

func (c *fakeConverter) Convert(RawFrame) (*Frame, error) {
	f := &Frame{Kind: c.kind}
	if c.kind == KindVideo {
		f.Video = &VideoPayload{Pix: make([]byte, 4), Stride: 4, Width: 1, Height: 1}
		return f, nil
	}

	f.Audio = &AudioPayload{
		Data:           make([]byte, 20),
		Channels:       1,
		SampleRate:     1000,
		BytesPerSample: 1,
	}
	for i := range f.Audio.Data {
		f.Audio.Data[i] = 1
	}
	f.Audio.Lead = c.lead
	return f, nil
}

func (c *fakeConverter) Flush() (*Frame, error) {
	if c.tail == 0 || c.flushed {
		return nil, nil
	}
	c.flushed = true
	return audioFrame(0, 0, make([]byte, c.tail)), nil
}

func (c *fakeConverter) Close() {
	if c.closeLog != nil {
		*c.closeLog = append(*c.closeLog, c.name)
	}
}

type fakeOpener struct {
	container    *fakeContainer
	containerErr error
	decoderErr   map[FrameKind]error
	converterErr map[FrameKind]error

	closeLog []string
	decoders map[FrameKind]*fakeDecoder
}

func (o *fakeOpener) OpenContainer(string) (Container, error) {
	if o.containerErr != nil {
		return nil, o.containerErr
	}
	return o.container, nil
}

func (o *fakeOpener) OpenDecoder(_ Container, s StreamInfo) (Decoder, error) {
	if err := o.decoderErr[s.Kind]; err != nil {
		return nil, err
	}
	d := &fakeDecoder{closeLog: &o.closeLog, name: s.Kind.String() + "-decoder"}
	if o.decoders == nil {
		o.decoders = map[FrameKind]*fakeDecoder{}
	}
	o.decoders[s.Kind] = d
	return d, nil
}

func (o *fakeOpener) OpenConverter(s StreamInfo) (Converter, error) {
	if err := o.converterErr[s.Kind]; err != nil {
		return nil, err
	}
	return &fakeConverter{kind: s.Kind, closeLog: &o.closeLog, name: s.Kind.String() + "-converter"}, nil
}

type fakeSurface struct {
	mutex     sync.Mutex
	presented []float64
	err       error
}

func (s *fakeSurface) Present(f *Frame) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.err != nil {
		return s.err
	}
	s.presented = append(s.presented, f.PTS)
	return nil
}

func (s *fakeSurface) PTS() []float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]float64(nil), s.presented...)
}

// fakeOutput pulls chunk bytes every period, like a sound card would.
type fakeOutput struct {
	chunk  int
	period time.Duration

	startErr error

	cancel context.CancelFunc
	done   chan struct{}

	mutex  sync.Mutex
	pulled int
}

func (o *fakeOutput) Start(r io.Reader) error {
	if o.startErr != nil {
		return o.startErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)

		t := time.NewTicker(o.period)
		defer t.Stop()

		buf := make([]byte, o.chunk)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, _ := r.Read(buf)
				o.mutex.Lock()
				o.pulled += n
				o.mutex.Unlock()
			}
		}
	}()
	return nil
}

func (o *fakeOutput) Stop() error {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
	return nil
}

type fakeEvents struct {
	mutex  sync.Mutex
	events []Event
}

func (e *fakeEvents) Push(ev Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.events = append(e.events, ev)
}

func (e *fakeEvents) Poll() (Event, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.events) == 0 {
		return Event{}, false
	}
	ev := e.events[0]
	e.events = e.events[1:]
	return ev, true
}

func videoFrame(pts float64, serial int) *Frame {
	return &Frame{
		Kind:   KindVideo,
		PTS:    pts,
		Serial: serial,
		Video:  &VideoPayload{Pix: make([]byte, 4), Stride: 4, Width: 1, Height: 1},
	}
}

func audioFrame(pts float64, serial int, data []byte) *Frame {
	return &Frame{
		Kind:   KindAudio,
		PTS:    pts,
		Serial: serial,
		Audio: &AudioPayload{
			Data:           data,
			Channels:       1,
			SampleRate:     1000,
			BytesPerSample: 1,
		},
	}
}
