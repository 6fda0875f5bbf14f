package decoder

import "errors"

var (
	ErrInputContextNil = errors.New("decoder: input context is nil")
	ErrUnknownStream   = errors.New("decoder: unknown stream")
	ErrForeignFrame    = errors.New("decoder: frame was not produced by this package")
)
