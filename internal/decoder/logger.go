package decoder

import "github.com/rs/zerolog"

var log = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	log = l.With().Str("pkg", "decoder").Logger()
}
