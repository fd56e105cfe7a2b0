package mp4capture

import (
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Sample is one encoded video sample with its timing.
type Sample struct {
	Data        []byte
	TimestampMs int
	DurationMs  int
}

// ReadSamples extracts the video samples of a fragmented MP4.
func ReadSamples(reader io.ReadSeeker) ([]Sample, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}
	if !mp4File.IsFragmented() {
		return nil, fmt.Errorf("progressive MP4 not supported, use fragmented MP4")
	}
	if mp4File.Init == nil || mp4File.Init.Moov == nil {
		return nil, fmt.Errorf("missing init segment")
	}

	// Find video track, its timescale and trex
	var videoTrackID uint32
	var timescale uint32 = 1000
	for _, trak := range mp4File.Init.Moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			if codec := trackCodec(trak); codec != CodecJPEG {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
			}
			videoTrackID = trak.Tkhd.TrackID
			if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
				timescale = trak.Mdia.Mdhd.Timescale
			}
			break
		}
	}
	if videoTrackID == 0 {
		return nil, fmt.Errorf("no video track found")
	}

	var trex *mp4.TrexBox
	if mp4File.Init.Moov.Mvex != nil {
		for _, t := range mp4File.Init.Moov.Mvex.Trexs {
			if t.TrackID == videoTrackID {
				trex = t
				break
			}
		}
	}

	var samples []Sample
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			isVideo := false
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID == videoTrackID {
					isVideo = true
					break
				}
			}
			if !isVideo {
				continue
			}

			full, err := frag.GetFullSamples(trex)
			if err != nil {
				return nil, fmt.Errorf("get samples: %w", err)
			}
			for _, fs := range full {
				samples = append(samples, Sample{
					Data:        fs.Data,
					TimestampMs: int(fs.DecodeTime * 1000 / uint64(timescale)),
					DurationMs:  int(uint64(fs.Dur) * 1000 / uint64(timescale)),
				})
			}
		}
	}
	return samples, nil
}
