package widget

import "errors"

var (
	ErrNoPicture  = errors.New("widget: frame has no picture")
	ErrBadPicture = errors.New("widget: picture geometry does not match its buffer")
)
