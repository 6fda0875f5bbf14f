package decoder

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// Input is a demuxed media file. It implements media.Container.
type Input struct {
	closer *astikit.Closer

	iformat *astiav.FormatContext
	pkt     *astiav.Packet

	streams []media.StreamInfo
	byIndex map[int]*astiav.Stream
}

func OpenInput(path string) (*Input, error) {
	in := &Input{
		closer:  astikit.NewCloser(),
		byIndex: map[int]*astiav.Stream{},
	}

	if in.iformat = astiav.AllocFormatContext(); in.iformat == nil {
		return nil, ErrInputContextNil
	}
	in.closer.Add(in.iformat.Free)

	if err := in.iformat.OpenInput(path, nil, nil); err != nil {
		in.closer.Close()
		return nil, fmt.Errorf("input: opening input failed: %w", err)
	}
	in.closer.Add(in.iformat.CloseInput)

	if err := in.iformat.FindStreamInfo(nil); err != nil {
		in.closer.Close()
		return nil, fmt.Errorf("input: finding stream info failed: %w", err)
	}

	in.pkt = astiav.AllocPacket()
	in.closer.Add(in.pkt.Free)

	for _, st := range in.iformat.Streams() {
		info, ok := describeStream(st)
		if !ok {
			continue
		}
		in.streams = append(in.streams, info)
		in.byIndex[st.Index()] = st
	}

	log.Debug().Str("path", path).Int("streams", len(in.streams)).Msg("input opened")

	return in, nil
}

func describeStream(st *astiav.Stream) (media.StreamInfo, bool) {
	cp := st.CodecParameters()

	info := media.StreamInfo{
		Index:    st.Index(),
		Codec:    cp.CodecID().Name(),
		TimeBase: st.TimeBase().Float64(),
	}

	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		info.Kind = media.KindVideo
		info.Width = cp.Width()
		info.Height = cp.Height()
		info.FrameRate = st.AvgFrameRate().Float64()
	case astiav.MediaTypeAudio:
		info.Kind = media.KindAudio
		info.SampleRate = cp.SampleRate()
		info.Channels = cp.ChannelLayout().Channels()
	default:
		return info, false
	}

	return info, true
}

// Streams lists the audio and video streams. Other stream types are left out
// and their packets are dropped by the reader.
func (in *Input) Streams() []media.StreamInfo {
	return in.streams
}

// Duration is the container's advertised duration, zero when unknown.
func (in *Input) Duration() time.Duration {
	d := in.iformat.Duration()
	if d <= 0 || d == astiav.NoPtsValue {
		return 0
	}
	return time.Duration(d) * time.Microsecond
}

// ReadPacket returns the next packet with its payload copied out of ffmpeg's
// buffer, or io.EOF at the end of the input.
func (in *Input) ReadPacket() (*media.Packet, error) {
	if err := in.iformat.ReadFrame(in.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("input: reading frame failed: %w", err)
	}
	defer in.pkt.Unref()

	return &media.Packet{
		StreamIndex: in.pkt.StreamIndex(),
		Data:        append([]byte(nil), in.pkt.Data()...),
		PTS:         in.pkt.Pts(),
		DTS:         in.pkt.Dts(),
		Duration:    in.pkt.Duration(),
		Flags:       uint64(in.pkt.Flags()),
	}, nil
}

func (in *Input) stream(index int) (*astiav.Stream, error) {
	st, ok := in.byIndex[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStream, index)
	}
	return st, nil
}

func (in *Input) Close() {
	in.closer.Close()
}
