// Package ts reads and writes the parts of an MPEG transport stream needed to
// rewrite the elementary stream of a PID in place.
package ts

import (
	"errors"
	"fmt"
)

const (
	PacketSize = 188
	SyncByte   = 0x47

	headerSize     = 4
	maxPayloadSize = PacketSize - headerSize
)

var (
	ErrPacketSize      = errors.New("ts: invalid packet size")
	ErrSyncByte        = errors.New("ts: sync byte mismatch")
	ErrAdaptationField = errors.New("ts: malformed adaptation field")
	ErrPES             = errors.New("ts: malformed pes")
)

type Header struct {
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	PID                       uint16
	ScramblingControl         uint8
	HasAdaptationField        bool
	HasPayload                bool
	ContinuityCounter         uint8
}

// Packet is a parsed transport packet. AdaptationField includes its length byte.
type Packet struct {
	Header          Header
	AdaptationField []byte
	Payload         []byte
}

// Split cuts data into packets without copying.
func Split(data []byte) ([][]byte, error) {
	if len(data)%PacketSize != 0 {
		return nil, fmt.Errorf("%w: stream length %d", ErrPacketSize, len(data))
	}

	packets := make([][]byte, 0, len(data)/PacketSize)
	for off := 0; off < len(data); off += PacketSize {
		if data[off] != SyncByte {
			return nil, fmt.Errorf("%w at offset %d", ErrSyncByte, off)
		}
		packets = append(packets, data[off:off+PacketSize])
	}
	return packets, nil
}

func ParsePacket(b []byte) (*Packet, error) {
	if len(b) != PacketSize {
		return nil, fmt.Errorf("%w: %d", ErrPacketSize, len(b))
	}
	if b[0] != SyncByte {
		return nil, ErrSyncByte
	}

	p := &Packet{Header: Header{
		TransportErrorIndicator:   b[1]&0x80 != 0,
		PayloadUnitStartIndicator: b[1]&0x40 != 0,
		TransportPriority:         b[1]&0x20 != 0,
		PID:                       uint16(b[1]&0x1f)<<8 | uint16(b[2]),
		ScramblingControl:         b[3] >> 6,
		HasAdaptationField:        b[3]&0x20 != 0,
		HasPayload:                b[3]&0x10 != 0,
		ContinuityCounter:         b[3] & 0x0f,
	}}

	pos := headerSize
	if p.Header.HasAdaptationField {
		l := int(b[pos])
		if pos+1+l > PacketSize {
			return nil, fmt.Errorf("%w: length %d", ErrAdaptationField, l)
		}
		p.AdaptationField = b[pos : pos+1+l]
		pos += 1 + l
	}
	if p.Header.HasPayload {
		p.Payload = b[pos:]
	}

	return p, nil
}

// Marshal encodes the packet, stuffing the adaptation field when header and
// payload do not fill the packet.
func (p *Packet) Marshal() ([]byte, error) {
	af := p.AdaptationField
	free := maxPayloadSize - len(af) - len(p.Payload)
	if free < 0 {
		return nil, fmt.Errorf("%w: %d bytes over", ErrPacketSize, -free)
	}
	if free > 0 {
		af = stuff(af, free)
	}

	h := p.Header
	b := make([]byte, PacketSize)
	b[0] = SyncByte
	b[1] = byte(h.PID>>8) & 0x1f
	if h.TransportErrorIndicator {
		b[1] |= 0x80
	}
	if h.PayloadUnitStartIndicator {
		b[1] |= 0x40
	}
	if h.TransportPriority {
		b[1] |= 0x20
	}
	b[2] = byte(h.PID)
	b[3] = h.ScramblingControl<<6 | h.ContinuityCounter&0x0f
	if len(af) > 0 {
		b[3] |= 0x20
	}
	if len(p.Payload) > 0 {
		b[3] |= 0x10
	}

	copy(b[headerSize:], af)
	copy(b[headerSize+len(af):], p.Payload)
	return b, nil
}

// SetContinuityCounter rewrites the counter of an encoded packet in place.
func SetContinuityCounter(b []byte, cc uint8) {
	b[3] = b[3]&0xf0 | cc&0x0f
}
