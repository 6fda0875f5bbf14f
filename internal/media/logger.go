package media

import "github.com/rs/zerolog"

var log = zerolog.Nop()

// SetLogger replaces the logger used by the pipeline. It must be called
// before the pipeline is started.
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("pkg", "media").Logger()
}
