package ts

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astits"
)

// StreamTypes demuxes data and returns the stream type of every elementary
// PID announced by a PMT.
func StreamTypes(ctx context.Context, data []byte) (map[uint16]astits.StreamType, error) {
	dmx := astits.NewDemuxer(ctx, bytes.NewReader(data), astits.DemuxerOptPacketSize(PacketSize))

	types := make(map[uint16]astits.StreamType)
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return types, nil
			}
			return nil, fmt.Errorf("demux: %w", err)
		}

		if d.PMT == nil {
			continue
		}
		for _, es := range d.PMT.ElementaryStreams {
			types[es.ElementaryPID] = es.StreamType
		}
	}
}

// H264PIDs returns the PIDs carrying H.264 video.
func H264PIDs(types map[uint16]astits.StreamType) map[uint16]bool {
	pids := make(map[uint16]bool)
	for pid, t := range types {
		if t == astits.StreamTypeH264Video {
			pids[pid] = true
		}
	}
	return pids
}
