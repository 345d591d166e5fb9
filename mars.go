package polyv

import (
	"bytes"
	"context"
	"fmt"

	"github.com/DevLARLEY/gopolyv/ts"
)

var marsMarker = []byte("mars")

// marsHeaderSize is the length of the obfuscated NAL preamble: marker key,
// marker, encoded header byte and eight key bytes.
const marsHeaderSize = 14

type pesUnit struct {
	first   *ts.Packet
	slots   []int
	payload []byte
	// adaptation-only packets seen while the unit was open
	adaptation []int
}

type deobfuscator struct {
	packets [][]byte
	out     [][]byte
	units   map[uint16]*pesUnit
	// ccShift is subtracted from the continuity counter of every later packet
	// of a PID after one of its PES packets shrank by whole packets.
	ccShift map[uint16]uint8
}

// Deobfuscate reverses the Mars obfuscation of the H.264 streams of a
// transport stream. Units without obfuscated NAL units and every other PID
// are emitted byte for byte.
func Deobfuscate(stream []byte) ([]byte, error) {
	if len(stream) == 0 {
		return stream, nil
	}

	packets, err := ts.Split(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamFormat, err)
	}

	types, err := ts.StreamTypes(context.Background(), stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamFormat, err)
	}
	h264 := ts.H264PIDs(types)

	d := &deobfuscator{
		packets: packets,
		out:     make([][]byte, len(packets)),
		units:   make(map[uint16]*pesUnit),
		ccShift: make(map[uint16]uint8),
	}

	for i, raw := range packets {
		pkt, err := ts.ParsePacket(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: packet %d: %w", ErrStreamFormat, i, err)
		}

		pid := pkt.Header.PID
		if !h264[pid] {
			d.out[i] = raw
			continue
		}
		if !pkt.Header.HasPayload {
			if u, ok := d.units[pid]; ok {
				u.adaptation = append(u.adaptation, i)
			} else {
				d.out[i] = d.shifted(raw, pid)
			}
			continue
		}

		if pkt.Header.PayloadUnitStartIndicator {
			if err = d.flush(pid); err != nil {
				return nil, err
			}
			d.units[pid] = &pesUnit{
				first:   pkt,
				slots:   []int{i},
				payload: append([]byte(nil), pkt.Payload...),
			}
			continue
		}

		u, ok := d.units[pid]
		if !ok {
			d.out[i] = d.shifted(raw, pid)
			continue
		}
		u.slots = append(u.slots, i)
		u.payload = append(u.payload, pkt.Payload...)
	}

	for pid := range d.units {
		if err = d.flush(pid); err != nil {
			return nil, err
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(stream)))
	for _, p := range d.out {
		buf.Write(p)
	}
	return buf.Bytes(), nil
}

func (d *deobfuscator) shifted(raw []byte, pid uint16) []byte {
	shift := d.ccShift[pid]
	if shift == 0 {
		return raw
	}

	b := append([]byte(nil), raw...)
	ts.SetContinuityCounter(b, (b[3]&0x0f-shift)&0x0f)
	return b
}

func (d *deobfuscator) flush(pid uint16) error {
	u, ok := d.units[pid]
	if !ok {
		return nil
	}
	delete(d.units, pid)

	hdr, err := ts.ParsePESHeader(u.payload)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrStreamFormat, pid, err)
	}
	end, err := hdr.DataEnd(len(u.payload))
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrStreamFormat, pid, err)
	}

	es := u.payload[hdr.HeaderLength:end]
	plain, changed, err := deobfuscateES(es)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrStreamFormat, pid, err)
	}

	if !changed {
		for _, s := range u.slots {
			d.out[s] = d.shifted(d.packets[s], pid)
		}
		d.shiftAdaptation(u, pid)
		return nil
	}

	pes := make([]byte, 0, len(u.payload))
	pes = append(pes, u.payload[:hdr.HeaderLength]...)
	pes = append(pes, plain...)
	pes = append(pes, u.payload[end:]...)
	if hdr.PacketLength != 0 {
		ts.SetPacketLength(pes, hdr.PacketLength-uint16(len(es)-len(plain)))
	}

	af, err := ts.TrimStuffing(u.first.AdaptationField)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrStreamFormat, pid, err)
	}

	cc := (u.first.Header.ContinuityCounter - d.ccShift[pid]) & 0x0f
	packets, err := ts.Packetize(u.first.Header, af, pes, cc)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrStreamFormat, pid, err)
	}
	if len(packets) > len(u.slots) {
		return fmt.Errorf("%w: pid %d: rewritten pes needs %d packets, had %d", ErrStreamFormat, pid, len(packets), len(u.slots))
	}

	for j, s := range u.slots {
		if j < len(packets) {
			d.out[s] = packets[j]
		} else {
			d.out[s] = nil
		}
	}
	d.ccShift[pid] = (d.ccShift[pid] + uint8(len(u.slots)-len(packets))) & 0x0f
	d.shiftAdaptation(u, pid)

	return nil
}

// shiftAdaptation renumbers the adaptation-only packets of u once the shift
// caused by rewriting u is known. They repeat the counter of the payload
// packet before them, so the new shift applies to them as well.
func (d *deobfuscator) shiftAdaptation(u *pesUnit, pid uint16) {
	for _, s := range u.adaptation {
		d.out[s] = d.shifted(d.packets[s], pid)
	}
}

// nextStartCode returns the offset of the next 00 00 01 or 00 00 00 01 at or
// after from, or -1.
func nextStartCode(data []byte, from int) int {
	for i := from; i < len(data)-3; i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 || (data[i+2] == 0 && data[i+3] == 1) {
			return i
		}
	}
	return -1
}

// deobfuscateES rewrites every obfuscated NAL unit of an H.264 elementary
// stream. Bytes before the first start code are kept.
func deobfuscateES(es []byte) ([]byte, bool, error) {
	start := nextStartCode(es, 0)
	if start < 0 {
		return es, false, nil
	}

	out := make([]byte, 0, len(es))
	out = append(out, es[:start]...)

	changed := false
	for start >= 0 {
		next := nextStartCode(es, start+3)
		end := len(es)
		if next >= 0 {
			end = next
		}

		prefix := 4
		if es[start+2] == 1 {
			prefix = 3
		}
		out = append(out, es[start:start+prefix]...)

		unit := es[start+prefix : end]
		if isMarsUnit(unit) {
			if len(unit) < marsHeaderSize {
				return nil, false, fmt.Errorf("obfuscated nal unit at %d is %d bytes", start, len(unit))
			}
			out = appendClearUnit(out, unit)
			changed = true
		} else {
			out = append(out, unit...)
		}

		start = next
	}

	return out, changed, nil
}

func isMarsUnit(unit []byte) bool {
	if len(unit) < 1+len(marsMarker) || unit[0]&0x80 == 0 {
		return false
	}

	key := unit[0] | 0x80
	for i, c := range marsMarker {
		if key^unit[1+i] != c {
			return false
		}
	}
	return true
}

func appendClearUnit(out, unit []byte) []byte {
	xorByte := unit[10]&0x0c | unit[12]&0x03
	nalXor := xorByte | unit[6]&0xc0 | unit[8]&0x30

	nalByte := nalXor ^ unit[5]
	out = append(out, nalByte>>3|nalByte<<5)

	kind := int((nalByte>>3)&0x1f) - 1
	for _, b := range unit[marsHeaderSize:] {
		switch kind {
		case 6:
			b ^= xorByte
		case 7:
			b = rotateNibbles(b ^ nalXor)
		case 0:
			b = rotateNibbles(b ^ nalXor ^ 0xff)
		}
		out = append(out, b)
	}
	return out
}

func rotateNibbles(b byte) byte {
	return b<<4 | b>>4
}
