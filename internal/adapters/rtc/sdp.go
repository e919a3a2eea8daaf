package rtc

import (
	"github.com/pion/sdp/v3"
)

// sendingSections counts the audio and video sections of an SDP in which
// its author sends media.
func sendingSections(raw string) (int, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return 0, err
	}
	n := 0
	for _, md := range sd.MediaDescriptions {
		switch md.MediaName.Media {
		case "audio", "video":
		default:
			continue
		}
		if md.MediaName.Port.Value == 0 {
			continue
		}
		if _, ok := md.Attribute("recvonly"); ok {
			continue
		}
		if _, ok := md.Attribute("inactive"); ok {
			continue
		}
		n++
	}
	return n, nil
}
