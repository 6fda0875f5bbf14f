package widget

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
)

const eventBuffer = 16

// VideoFrame is the window content showing decoded video. It implements
// media.Surface and media.EventSource: key presses and window close requests
// are queued as events for the presenter to poll.
type VideoFrame struct {
	image  *canvas.Image
	events chan media.Event
}

func NewVideoFrame() *VideoFrame {
	img := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest

	return &VideoFrame{
		image:  img,
		events: make(chan media.Event, eventBuffer),
	}
}

// Attach makes vf the content of w and routes its input to vf. Closing the
// window is turned into a quit event; the caller closes the app once playback
// has stopped.
func (vf *VideoFrame) Attach(w fyne.Window) {
	w.SetContent(vf.image)
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		vf.push(media.Event{Type: media.EventKey, Key: string(ev.Name)})
	})
	w.SetCloseIntercept(func() {
		vf.push(media.Event{Type: media.EventQuit})
	})
}

func (vf *VideoFrame) CanvasObject() fyne.CanvasObject {
	return vf.image
}

func (vf *VideoFrame) push(ev media.Event) {
	select {
	case vf.events <- ev:
	default:
	}
}

// Poll implements media.EventSource.
func (vf *VideoFrame) Poll() (media.Event, bool) {
	select {
	case ev := <-vf.events:
		return ev, true
	default:
		return media.Event{}, false
	}
}

// Present implements media.Surface. The frame's pixels are handed to the UI
// goroutine without copying.
func (vf *VideoFrame) Present(f *media.Frame) error {
	img, err := toImage(f)
	if err != nil {
		return err
	}

	fyne.Do(func() {
		vf.image.Image = img
		vf.image.Refresh()
	})
	return nil
}

func toImage(f *media.Frame) (*image.RGBA, error) {
	if f == nil || f.Video == nil {
		return nil, ErrNoPicture
	}

	v := f.Video
	if v.Width <= 0 || v.Height <= 0 || v.Stride < v.Width*4 || len(v.Pix) < v.Stride*v.Height {
		return nil, ErrBadPicture
	}

	return &image.RGBA{
		Pix:    v.Pix,
		Stride: v.Stride,
		Rect:   image.Rect(0, 0, v.Width, v.Height),
	}, nil
}
