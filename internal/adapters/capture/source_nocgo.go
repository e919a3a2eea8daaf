//go:build !cgo

package capture

import (
	"context"
	"errors"

	"github.com/dkeye/Stream/internal/core"
)

var errNoDrivers = errors.New("built without cgo: no capture drivers")

// Source reports every device as unavailable; the capture drivers and
// encoders need cgo.
type Source struct{}

func New(Options) (*Source, error) { return &Source{}, nil }

func (*Source) CameraStream(context.Context) (core.Media, error) {
	return nil, classify("camera", errNoDrivers)
}

func (*Source) ScreenStream(context.Context) (core.Media, error) {
	return nil, classify("screen", errNoDrivers)
}
