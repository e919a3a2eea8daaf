// Package capture supplies local camera and screen media through
// pion/mediadevices.
package capture

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/dkeye/Stream/internal/core"
)

type Options struct {
	Width        int
	Height       int
	FrameRate    float64
	VideoBitRate int
	AudioBitRate int
	// Audio adds the default microphone to camera capture.
	Audio bool
}

func DefaultOptions() Options {
	return Options{
		Width:        640,
		Height:       480,
		FrameRate:    30,
		VideoBitRate: 500_000,
		AudioBitRate: 32_000,
		Audio:        true,
	}
}

// classify maps a driver failure onto the media acquisition reasons.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	reason := core.ErrDeviceUnavailable
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission), strings.Contains(msg, "permission denied"), strings.Contains(msg, "not permitted"):
		reason = core.ErrPermissionDenied
	case errors.Is(err, errCancelled), strings.Contains(msg, "cancel"):
		reason = core.ErrUserCancelled
	}
	return core.NewError(core.KindMediaAcquisition, op, "", errors.Join(reason, err))
}

var errCancelled = errors.New("capture cancelled")
