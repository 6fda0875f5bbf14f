package widget

import (
	"image/color"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToImage(t *testing.T) {
	f := &media.Frame{Video: &media.VideoPayload{
		Pix:    []byte{255, 0, 0, 255, 0, 255, 0, 255},
		Stride: 8,
		Width:  2,
		Height: 1,
	}}

	img, err := toImage(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(1, 0))
}

func TestToImageRejectsBadFrames(t *testing.T) {
	_, err := toImage(&media.Frame{})
	assert.ErrorIs(t, err, ErrNoPicture)

	_, err = toImage(&media.Frame{Video: &media.VideoPayload{Pix: make([]byte, 4), Stride: 8, Width: 2, Height: 1}})
	assert.ErrorIs(t, err, ErrBadPicture)
}

func TestKeysBecomeEvents(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	w := a.NewWindow("player")
	vf := NewVideoFrame()
	vf.Attach(w)

	_, ok := vf.Poll()
	assert.False(t, ok)

	w.Canvas().OnTypedKey()(&fyne.KeyEvent{Name: fyne.KeyQ})

	ev, ok := vf.Poll()
	require.True(t, ok)
	assert.Equal(t, media.EventKey, ev.Type)
	assert.Equal(t, "Q", ev.Key)
}

func TestEventsDoNotBlockWhenFull(t *testing.T) {
	vf := NewVideoFrame()
	for i := 0; i < eventBuffer*2; i++ {
		vf.push(media.Event{Type: media.EventQuit})
	}

	n := 0
	for {
		if _, ok := vf.Poll(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, eventBuffer, n)
}
