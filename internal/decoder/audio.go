package decoder

import (
	"fmt"

	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
)

var (
	CHANNEL_LAYOUT = astiav.ChannelLayoutStereo
	FORMAT_TYPE    = astiav.SampleFormatFlt
	SAMPLE_RATE    = 44100
)

// bytes per sample of FORMAT_TYPE
const sampleSize = 4

// AudioFormat is the device format audio is resampled to. Samples are always
// interleaved 32-bit float.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: SAMPLE_RATE,
		Channels:   CHANNEL_LAYOUT.Channels(),
	}
}

func (f AudioFormat) layout() (astiav.ChannelLayout, error) {
	switch f.Channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	default:
		return astiav.ChannelLayout{}, fmt.Errorf("resampler: unsupported channel count %d", f.Channels)
	}
}

// Resampler converts decoded audio frames into the device format. It
// implements media.Converter and media.TailFlusher.
type Resampler struct {
	format AudioFormat
	layout astiav.ChannelLayout

	swr *astiav.SoftwareResampleContext
	dst *astiav.Frame

	// swr is configured lazily by its first conversion
	primed bool
}

func NewResampler(format AudioFormat) (*Resampler, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d", format.SampleRate)
	}

	layout, err := format.layout()
	if err != nil {
		return nil, err
	}

	return &Resampler{
		format: format,
		layout: layout,
		swr:    astiav.AllocSoftwareResampleContext(),
		dst:    astiav.AllocFrame(),
	}, nil
}

func (r *Resampler) Format() AudioFormat {
	return r.format
}

func (r *Resampler) Convert(raw media.RawFrame) (*media.Frame, error) {
	src, err := frameOf(raw)
	if err != nil {
		return nil, err
	}

	lead := r.delay()

	data, err := r.convert(src)
	if err != nil {
		return nil, err
	}
	r.primed = true

	p := r.payload(data)
	p.Lead = lead
	return &media.Frame{Kind: media.KindAudio, Audio: p}, nil
}

// Flush drains the samples swr still buffers. It returns nil when there are
// none.
func (r *Resampler) Flush() (*media.Frame, error) {
	if !r.primed {
		return nil, nil
	}

	var data []byte
	for {
		b, err := r.convert(nil)
		if err != nil {
			return nil, fmt.Errorf("resampler: flushing failed: %w", err)
		}
		if len(b) == 0 {
			break
		}
		data = append(data, b...)
	}

	if len(data) == 0 {
		return nil, nil
	}

	log.Debug().Int("bytes", len(data)).Msg("resampler tail flushed")

	return &media.Frame{Kind: media.KindAudio, Audio: r.payload(data)}, nil
}

// convert runs one swr pass. A nil src drains buffered samples.
func (r *Resampler) convert(src *astiav.Frame) ([]byte, error) {
	r.dst.SetChannelLayout(r.layout)
	r.dst.SetSampleFormat(FORMAT_TYPE)
	r.dst.SetSampleRate(r.format.SampleRate)
	defer r.dst.Unref()

	if err := r.swr.ConvertFrame(src, r.dst); err != nil {
		return nil, fmt.Errorf("resampler: converting frame failed: %w", err)
	}

	n := r.dst.NbSamples()
	if n <= 0 {
		return nil, nil
	}

	b, err := r.dst.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("resampler: reading samples failed: %w", err)
	}

	size := n * r.format.Channels * sampleSize
	if size > len(b) {
		size = len(b)
	}
	return append([]byte(nil), b[:size]...), nil
}

// delay is how long the samples buffered in swr play, in seconds.
func (r *Resampler) delay() float64 {
	if !r.primed {
		return 0
	}
	rate := int64(r.format.SampleRate)
	return float64(r.swr.Delay(rate)) / float64(rate)
}

func (r *Resampler) payload(data []byte) *media.AudioPayload {
	return &media.AudioPayload{
		Data:           data,
		Channels:       r.format.Channels,
		SampleRate:     r.format.SampleRate,
		BytesPerSample: sampleSize,
	}
}

func (r *Resampler) Close() {
	r.dst.Free()
	r.swr.Free()
}
