package media

import "io"

// StreamInfo describes one elementary stream found by Container probing.
type StreamInfo struct {
	Index    int
	Kind     FrameKind
	Codec    string
	TimeBase float64

	Width     int
	Height    int
	FrameRate float64

	SampleRate int
	Channels   int
}

// Container demultiplexes a media source into packets. ReadPacket returns
// io.EOF once the source is exhausted.
type Container interface {
	Streams() []StreamInfo
	ReadPacket() (*Packet, error)
	Close()
}

// RawFrame is a decoded frame still owned by the decoding library. Timestamps
// are in seconds, NaN when unknown.
type RawFrame interface {
	Timestamps() (pts, bestEffort float64)
	Free()
}

// Decoder turns packets into raw frames. ReceiveFrame returns
// ErrNeedMoreInput when a new packet is required and ErrEndOfStream once an
// end-of-stream packet has been fully drained.
type Decoder interface {
	SendPacket(pkt *Packet) error
	ReceiveFrame() (RawFrame, error)
	Close()
}

// Converter produces a presentable Frame from a raw frame: pixel format
// conversion for video, resampling for audio. The raw frame stays owned by
// the caller.
type Converter interface {
	Convert(raw RawFrame) (*Frame, error)
	Close()
}

// TailFlusher is implemented by converters that buffer input, like audio
// resamplers. Flush returns whatever is still buffered at end of stream, or
// nil when nothing is.
type TailFlusher interface {
	Flush() (*Frame, error)
}

// Surface displays video frames.
type Surface interface {
	Present(f *Frame) error
}

// AudioOutput pulls samples from r on its own schedule once started.
type AudioOutput interface {
	Start(r io.Reader) error
	Stop() error
}

type EventType uint8

const (
	EventQuit EventType = iota + 1
	EventKey
)

type Event struct {
	Type EventType
	Key  string
}

// EventSource yields UI events without blocking.
type EventSource interface {
	Poll() (Event, bool)
}

// Opener acquires the collaborators for a media source.
type Opener interface {
	OpenContainer(path string) (Container, error)
	OpenDecoder(c Container, s StreamInfo) (Decoder, error)
	OpenConverter(s StreamInfo) (Converter, error)
}
