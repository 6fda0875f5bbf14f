package output

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStopBeforeStart(t *testing.T) {
	o := NewOto(Options{SampleRate: 44100, Channels: 2, Volume: 1}, zerolog.Nop())
	assert.ErrorIs(t, o.Stop(), ErrNotStarted)
}
