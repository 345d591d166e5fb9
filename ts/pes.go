package ts

import "fmt"

const (
	streamIDProgramStreamMap = 0xbc
	streamIDPadding          = 0xbe
	streamIDPrivateStream2   = 0xbf
	streamIDECM              = 0xf0
	streamIDEMM              = 0xf1
	streamIDDSMCC            = 0xf2
	streamIDH2221TypeE       = 0xf8
	streamIDDirectory        = 0xff
)

type PESHeader struct {
	StreamID     uint8
	PacketLength uint16
	// HeaderLength is the offset of the elementary stream data.
	HeaderLength int
}

// DataEnd returns the end of the packet's data within a payload of n bytes.
func (h *PESHeader) DataEnd(n int) (int, error) {
	if h.PacketLength == 0 {
		return n, nil
	}
	end := 6 + int(h.PacketLength)
	if end > n {
		return 0, fmt.Errorf("%w: truncated, %d of %d bytes", ErrPES, n, end)
	}
	return end, nil
}

func ParsePESHeader(b []byte) (*PESHeader, error) {
	if len(b) < 6 {
		return nil, fmt.Errorf("%w: %d byte header", ErrPES, len(b))
	}
	if b[0] != 0 || b[1] != 0 || b[2] != 1 {
		return nil, fmt.Errorf("%w: missing start code", ErrPES)
	}

	h := &PESHeader{
		StreamID:     b[3],
		PacketLength: uint16(b[4])<<8 | uint16(b[5]),
		HeaderLength: 6,
	}

	if hasOptionalHeader(h.StreamID) {
		if len(b) < 9 {
			return nil, fmt.Errorf("%w: optional header truncated", ErrPES)
		}
		h.HeaderLength = 9 + int(b[8])
		if len(b) < h.HeaderLength {
			return nil, fmt.Errorf("%w: optional header needs %d bytes, have %d", ErrPES, h.HeaderLength, len(b))
		}
	}

	return h, nil
}

// SetPacketLength rewrites PES_packet_length of an encoded PES packet.
func SetPacketLength(b []byte, n uint16) {
	b[4] = byte(n >> 8)
	b[5] = byte(n)
}

func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case streamIDProgramStreamMap, streamIDPadding, streamIDPrivateStream2,
		streamIDECM, streamIDEMM, streamIDDSMCC, streamIDH2221TypeE, streamIDDirectory:
		return false
	default:
		return true
	}
}
