package media

import "math"

type FrameKind uint8

const (
	KindVideo FrameKind = iota
	KindAudio
)

func (k FrameKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// NoPTS marks an unknown timestamp in seconds.
var NoPTS = math.NaN()

// HasPTS reports whether a timestamp in seconds is known.
func HasPTS(pts float64) bool {
	return !math.IsNaN(pts)
}

// Packet is one compressed unit read from the container. A packet is owned by
// exactly one holder at a time: the container hands it to the worker, which
// moves it into a PacketQueue and then into a Decoder.
type Packet struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	// Flags are the container's packet flags, passed through to the decoder.
	Flags       uint64

	// EndOfStream packets carry no data and tell the decoder to drain.
	EndOfStream bool
}

func (p *Packet) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

func endOfStreamPacket(streamIndex int) *Packet {
	return &Packet{StreamIndex: streamIndex, EndOfStream: true}
}

type VideoPayload struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

type AudioPayload struct {
	Data           []byte
	Channels       int
	SampleRate     int
	BytesPerSample int

	// Lead is how many seconds of earlier input the converter still held
	// when this chunk was produced. The chunk starts that much before the
	// source frame's timestamp.
	Lead float64
}

// BytesPerSecond returns the playback byte rate of the payload format.
func (a *AudioPayload) BytesPerSecond() float64 {
	return float64(a.SampleRate * a.Channels * a.BytesPerSample)
}

// Seconds returns the playback length of the payload.
func (a *AudioPayload) Seconds() float64 {
	bps := a.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return float64(len(a.Data)) / bps
}

// Frame is a converted presentation unit. Once popped from a FrameQueue the
// consumer owns it until Release.
type Frame struct {
	Kind FrameKind

	// PTS is the presentation time in seconds. Degraded is set when the value
	// came from a fallback rather than from the decoder's own timestamp.
	PTS      float64
	Degraded bool

	Serial int

	Video *VideoPayload
	Audio *AudioPayload
}

func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.Video = nil
	f.Audio = nil
}
