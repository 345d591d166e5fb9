package polyv

import (
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// MP4Info summarizes a downloaded MP4 file.
type MP4Info struct {
	Fragmented bool
	Tracks     int
	Duration   time.Duration
}

// ProbeMP4 decodes the box structure of r without loading media data and
// checks that it carries a movie header.
func ProbeMP4(r io.ReadSeeker) (*MP4Info, error) {
	f, err := mp4.DecodeFile(r, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp4: %w", ErrDecode, err)
	}

	moov := f.Moov
	if moov == nil && f.Init != nil {
		moov = f.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("%w: no moov box", ErrDecode)
	}

	info := &MP4Info{
		Fragmented: f.IsFragmented(),
		Tracks:     len(moov.Traks),
	}
	if mvhd := moov.Mvhd; mvhd != nil && mvhd.Timescale != 0 {
		info.Duration = time.Duration(mvhd.Duration) * time.Second / time.Duration(mvhd.Timescale)
	}

	return info, nil
}
