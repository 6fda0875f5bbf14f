package media

import "errors"

var (
	ErrAborted       = errors.New("media: queue aborted")
	ErrEndOfStream   = errors.New("media: end of stream")
	ErrNeedMoreInput = errors.New("media: decoder needs more input")
	ErrNoStream      = errors.New("media: no decodable stream found")
)
