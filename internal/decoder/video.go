package decoder

import (
	"fmt"

	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/asticode/go-astiav"
)

// Scaler converts decoded video frames into packed RGBA. The software scale
// context is rebuilt whenever the source geometry or pixel format changes.
type Scaler struct {
	width, height int

	ssc *astiav.SoftwareScaleContext
	dst *astiav.Frame

	srcW, srcH int
	srcPix     astiav.PixelFormat
	dstW, dstH int
}

// NewScaler returns a Scaler producing width x height frames. A zero width or
// height keeps the source size.
func NewScaler(width, height int) *Scaler {
	return &Scaler{
		width:  width,
		height: height,
	}
}

func (s *Scaler) ensure(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()

	if s.ssc != nil && sw == s.srcW && sh == s.srcH && sp == s.srcPix {
		return nil
	}

	s.Close()

	dw, dh := outputSize(sw, sh, s.width, s.height)
	ssc, err := astiav.CreateSoftwareScaleContext(
		sw, sh, sp,
		dw, dh, astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("scaler: creating scale context %dx%d %s failed: %w", sw, sh, sp, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(dw)
	dst.SetHeight(dh)
	dst.SetPixelFormat(astiav.PixelFormatRgba)

	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("scaler: allocating frame buffer failed: %w", err)
	}

	s.ssc = ssc
	s.dst = dst
	s.srcW, s.srcH, s.srcPix = sw, sh, sp
	s.dstW, s.dstH = dw, dh

	log.Debug().
		Int("src_width", sw).
		Int("src_height", sh).
		Str("src_pix", sp.String()).
		Int("width", dw).
		Int("height", dh).
		Msg("scaler ready")

	return nil
}

// Convert implements media.Converter.
func (s *Scaler) Convert(raw media.RawFrame) (*media.Frame, error) {
	src, err := frameOf(raw)
	if err != nil {
		return nil, err
	}

	if err := s.ensure(src); err != nil {
		return nil, err
	}

	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("scaler: scaling frame failed: %w", err)
	}

	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("scaler: sizing image buffer failed: %w", err)
	}

	pix := make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(pix, 1); err != nil {
		return nil, fmt.Errorf("scaler: copying image failed: %w", err)
	}

	return &media.Frame{
		Kind: media.KindVideo,
		Video: &media.VideoPayload{
			Pix:    pix,
			Stride: s.dstW * 4,
			Width:  s.dstW,
			Height: s.dstH,
		},
	}, nil
}

func (s *Scaler) Close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

// outputSize fits the requested box. With only one side given the other keeps
// the source aspect ratio.
func outputSize(srcW, srcH, w, h int) (int, int) {
	switch {
	case w > 0 && h > 0:
		return w, h
	case w > 0 && srcW > 0:
		return w, even(srcH * w / srcW)
	case h > 0 && srcH > 0:
		return even(srcW * h / srcH), h
	default:
		return srcW, srcH
	}
}

func even(v int) int {
	if v < 2 {
		return 2
	}
	return v &^ 1
}
