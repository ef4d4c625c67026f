//go:build !linux

package audioio

import (
	"errors"
	"log/slog"
)

var errNoALSA = errors.New("ALSA is only available on Linux")

func newALSASource(Config, *slog.Logger) (Source, error) {
	return nil, errNoALSA
}

func newALSASink(Config, *slog.Logger) (Sink, error) {
	return nil, errNoALSA
}
