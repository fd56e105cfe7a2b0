package mp4capture

import (
	"errors"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ErrUnsupportedCodec is returned for recordings whose frames are not JPEG.
var ErrUnsupportedCodec = errors.New("mp4capture: unsupported codec, only Motion-JPEG recordings can be replayed")

// Codec identifies the sample entry of a video track.
type Codec string

const (
	CodecJPEG    Codec = "jpeg"
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecUnknown Codec = "unknown"
)

// trackCodec reads the codec from the first recognised sample entry of a video track.
func trackCodec(trak *mp4.TrakBox) Codec {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return CodecUnknown
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "jpeg", "mjpa", "mjpb":
			return CodecJPEG
		case "avc1", "avc3":
			return CodecH264
		case "hvc1", "hev1":
			return CodecHEVC
		case "av01":
			return CodecAV1
		}
	}
	return CodecUnknown
}
