package decoder

import (
	"errors"
	"fmt"

	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// Opener builds astiav-backed collaborators for media.Media.
type Opener struct {
	audio  AudioFormat
	width  int
	height int
}

// NewOpener returns an Opener resampling audio to format and scaling video to
// width x height. A zero width or height keeps the source size.
func NewOpener(format AudioFormat, width, height int) *Opener {
	return &Opener{
		audio:  format,
		width:  width,
		height: height,
	}
}

func (o *Opener) OpenContainer(path string) (media.Container, error) {
	return OpenInput(path)
}

func (o *Opener) OpenDecoder(c media.Container, s media.StreamInfo) (media.Decoder, error) {
	in, ok := c.(*Input)
	if !ok || in == nil {
		return nil, ErrInputContextNil
	}

	st, err := in.stream(s.Index)
	if err != nil {
		return nil, err
	}

	return OpenStreamDecoder(st)
}

func (o *Opener) OpenConverter(s media.StreamInfo) (media.Converter, error) {
	switch s.Kind {
	case media.KindVideo:
		return NewScaler(o.width, o.height), nil
	case media.KindAudio:
		return NewResampler(o.audio)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnknownStream, s.Kind)
	}
}

// StreamDecoder decodes the packets of one stream. It implements
// media.Decoder.
type StreamDecoder struct {
	closer *astikit.Closer

	st *astiav.Stream
	cc *astiav.CodecContext

	pkt *astiav.Packet
	df  *astiav.Frame

	timeBase astiav.Rational
	lastDts  int64
}

func OpenStreamDecoder(st *astiav.Stream) (*StreamDecoder, error) {
	d := &StreamDecoder{
		closer:   astikit.NewCloser(),
		st:       st,
		timeBase: st.TimeBase(),
		lastDts:  astiav.NoPtsValue,
	}

	codec := astiav.FindDecoder(st.CodecParameters().CodecID())
	if codec == nil {
		return nil, errors.New("opening decoder: codec is nil")
	}

	if d.cc = astiav.AllocCodecContext(codec); d.cc == nil {
		return nil, errors.New("opening decoder: codec context is nil")
	}
	d.closer.Add(d.cc.Free)

	if err := st.CodecParameters().ToCodecContext(d.cc); err != nil {
		d.closer.Close()
		return nil, fmt.Errorf("opening decoder: updating codec context failed: %w", err)
	}

	if err := d.cc.Open(codec, nil); err != nil {
		d.closer.Close()
		return nil, fmt.Errorf("opening decoder: opening codec context failed: %w", err)
	}

	d.pkt = astiav.AllocPacket()
	d.closer.Add(d.pkt.Free)

	d.df = astiav.AllocFrame()
	d.closer.Add(d.df.Free)

	log.Debug().
		Int("index", st.Index()).
		Str("codec", codec.Name()).
		Msg("decoder opened")

	return d, nil
}

// SendPacket feeds p to the codec. An end-of-stream packet puts the codec in
// draining mode.
func (d *StreamDecoder) SendPacket(p *media.Packet) error {
	if p.EndOfStream {
		if err := d.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			return fmt.Errorf("decode: sending flush packet failed: %w", err)
		}
		return nil
	}

	if err := d.pkt.FromData(p.Data); err != nil {
		return fmt.Errorf("decode: filling packet failed: %w", err)
	}
	defer d.pkt.Unref()

	d.pkt.SetPts(p.PTS)
	d.pkt.SetDts(p.DTS)
	d.pkt.SetDuration(p.Duration)
	d.pkt.SetFlags(astiav.PacketFlags(p.Flags))
	d.pkt.SetStreamIndex(p.StreamIndex)

	if p.DTS != astiav.NoPtsValue {
		d.lastDts = p.DTS
	}

	if err := d.cc.SendPacket(d.pkt); err != nil {
		return fmt.Errorf("decode: sending packet failed: %w", err)
	}
	return nil
}

// ReceiveFrame returns the next decoded frame. The frame buffer is reused:
// the caller must Free the returned frame before receiving again.
func (d *StreamDecoder) ReceiveFrame() (media.RawFrame, error) {
	if err := d.cc.ReceiveFrame(d.df); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, media.ErrNeedMoreInput
		case errors.Is(err, astiav.ErrEof):
			return nil, media.ErrEndOfStream
		}
		return nil, fmt.Errorf("decode: receiving frame failed: %w", err)
	}

	return &rawFrame{
		f:          d.df,
		pts:        toSeconds(d.df.Pts(), d.timeBase),
		bestEffort: toSeconds(d.lastDts, d.timeBase),
	}, nil
}

func (d *StreamDecoder) Close() {
	d.closer.Close()
}

// rawFrame wraps a decoded astiav frame until it has been converted.
type rawFrame struct {
	f               *astiav.Frame
	pts, bestEffort float64
}

func (r *rawFrame) Timestamps() (float64, float64) {
	return r.pts, r.bestEffort
}

func (r *rawFrame) Free() {
	r.f.Unref()
}

func frameOf(raw media.RawFrame) (*astiav.Frame, error) {
	r, ok := raw.(*rawFrame)
	if !ok || r.f == nil {
		return nil, ErrForeignFrame
	}
	return r.f, nil
}

func toSeconds(ts int64, tb astiav.Rational) float64 {
	if ts == astiav.NoPtsValue || tb.Den() == 0 {
		return media.NoPTS
	}
	return float64(ts) * tb.Float64()
}
