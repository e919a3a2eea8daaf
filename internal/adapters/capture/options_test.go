package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/dkeye/Stream/internal/core"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"permission", fmt.Errorf("open /dev/video0: %w", fs.ErrPermission), core.ErrPermissionDenied},
		{"permission text", errors.New("ioctl: operation not permitted"), core.ErrPermissionDenied},
		{"cancelled", errCancelled, core.ErrUserCancelled},
		{"no device", errors.New("failed to find the best driver that fits the constraints"), core.ErrDeviceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("camera", tc.err)
			if core.KindOf(err) != core.KindMediaAcquisition {
				t.Fatalf("kind = %v", core.KindOf(err))
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("%v is not %v", err, tc.want)
			}
			if !errors.Is(err, tc.err) {
				t.Fatal("cause lost")
			}
		})
	}
	if classify("camera", nil) != nil {
		t.Fatal("nil error classified")
	}
}
