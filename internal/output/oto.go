package output

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

var ErrNotStarted = errors.New("output: player not started")

type Options struct {
	SampleRate int
	Channels   int
	// BufferSize is the device buffer length. Zero lets oto pick.
	BufferSize time.Duration
	Volume     float64
}

// Oto plays float32 little-endian interleaved samples pulled from a reader.
// oto allows one context per process, so the context outlives Stop and is
// reused by the next Start.
type Oto struct {
	opts Options
	log  zerolog.Logger

	mutex  sync.Mutex
	ctx    *oto.Context
	player *oto.Player
}

func NewOto(opts Options, log zerolog.Logger) *Oto {
	return &Oto{
		opts: opts,
		log:  log.With().Str("pkg", "output").Logger(),
	}
}

func (o *Oto) context() (*oto.Context, error) {
	if o.ctx != nil {
		return o.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.opts.SampleRate,
		ChannelCount: o.opts.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.opts.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("output: creating audio context failed: %w", err)
	}
	<-ready

	o.ctx = ctx
	return ctx, nil
}

// Start begins pulling from r on oto's own goroutine.
func (o *Oto) Start(r io.Reader) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	ctx, err := o.context()
	if err != nil {
		return err
	}

	if o.player != nil {
		_ = o.player.Close()
	}

	o.player = ctx.NewPlayer(r)
	o.player.SetVolume(o.opts.Volume)
	o.player.Play()

	o.log.Debug().
		Int("sample_rate", o.opts.SampleRate).
		Int("channels", o.opts.Channels).
		Msg("audio output started")

	return nil
}

func (o *Oto) Stop() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.player == nil {
		return ErrNotStarted
	}

	o.player.Pause()
	err := o.player.Close()
	o.player = nil

	if err != nil {
		return fmt.Errorf("output: closing player failed: %w", err)
	}
	return nil
}
